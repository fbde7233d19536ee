package exchange

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
)

// SolanaClient wraps the chain RPC calls the pipeline needs: balances,
// mint precision, transaction submit/confirm, and fee lookup.
type SolanaClient struct {
	RPC    *rpc.Client
	Commit rpc.CommitmentType
	log    zerolog.Logger
}

func NewSolanaClient(rpcURL, commitment string, log zerolog.Logger) *SolanaClient {
	c := rpc.CommitmentConfirmed
	switch commitment {
	case "processed":
		c = rpc.CommitmentProcessed
	case "finalized":
		c = rpc.CommitmentFinalized
	}
	return &SolanaClient{
		RPC:    rpc.New(rpcURL),
		Commit: c,
		log:    log.With().Str("comp", "solana").Logger(),
	}
}

// GetBalance returns the native SOL balance in lamports.
func (s *SolanaClient) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	out, err := s.RPC.GetBalance(ctx, pubkey, s.Commit)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

// GetTokenBalance returns the owner's balance of the given mint in base
// units. An owner with no token account holds zero.
func (s *SolanaClient) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	accounts, err := s.RPC.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{Mint: &mint},
		&rpc.GetTokenAccountsOpts{Commitment: s.Commit},
	)
	if err != nil {
		return 0, fmt.Errorf("token accounts: %w", err)
	}
	if accounts == nil || len(accounts.Value) == 0 {
		return 0, nil
	}

	balance, err := s.RPC.GetTokenAccountBalance(ctx, accounts.Value[0].Pubkey, s.Commit)
	if err != nil {
		return 0, fmt.Errorf("token balance: %w", err)
	}
	if balance == nil || balance.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", balance.Value.Amount, err)
	}
	return amount, nil
}

// GetTokenDecimals resolves a mint's precision via its supply record.
func (s *SolanaClient) GetTokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	out, err := s.RPC.GetTokenSupply(ctx, mint, s.Commit)
	if err != nil {
		return 0, fmt.Errorf("token supply: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("empty token supply for %s", mint)
	}
	return out.Value.Decimals, nil
}

// SendTransaction decodes a base64 transaction from the aggregator, signs
// it with the supplied key, and submits it.
func (s *SolanaClient) SendTransaction(ctx context.Context, txBase64 string, signer solana.PrivateKey) (solana.Signature, error) {
	var sig solana.Signature

	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return sig, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return sig, fmt.Errorf("unmarshal tx: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return sig, fmt.Errorf("sign: %w", err)
	}

	sig, err = s.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: s.Commit,
	})
	if err != nil {
		return sig, fmt.Errorf("send: %w", err)
	}
	s.log.Info().Str("sig", sig.String()).Msg("transaction sent")
	return sig, nil
}

// ConfirmTransaction polls signature status until the configured commitment
// is reached or the retry budget runs out.
func (s *SolanaClient) ConfirmTransaction(ctx context.Context, sig solana.Signature, maxRetries int) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = 30
	}
	for i := 0; i < maxRetries; i++ {
		out, err := s.RPC.GetSignatureStatuses(ctx, false, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return false, fmt.Errorf("transaction failed on chain: %v", st.Err)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return false, nil
}

// GetTransactionFee returns the fee paid by a landed transaction in
// lamports.
func (s *SolanaClient) GetTransactionFee(ctx context.Context, sig solana.Signature) (uint64, error) {
	maxVersion := uint64(0)
	out, err := s.RPC.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     s.Commit,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return 0, fmt.Errorf("get transaction: %w", err)
	}
	if out == nil || out.Meta == nil {
		return 0, fmt.Errorf("transaction %s has no meta", sig)
	}
	return out.Meta.Fee, nil
}
