package ledger

import (
	"context"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Guard verifies the environment before any mutating call is attempted:
// the node answers, the connected network is the expected one, and the
// contract address actually holds deployed code. Results are never
// cached, the engine re-runs the guard for every unit of work because
// any environment-affecting event (account change, network change)
// invalidates a previous pass.
type Guard struct {
	gateway *Gateway
	logger  cmtlog.Logger
}

// NewGuard creates a guard over the given gateway
func NewGuard(gateway *Gateway, logger cmtlog.Logger) *Guard {
	return &Guard{gateway: gateway, logger: logger}
}

// VerifyEnvironment runs the three checks in order and returns an
// ENVIRONMENT_VIOLATION error on the first failure
func (g *Guard) VerifyEnvironment(ctx context.Context) error {
	observed, err := g.gateway.ChainID(ctx)
	if err != nil {
		return &Error{
			Code:    CodeEnvironmentViolation,
			Message: "ledger node is unreachable",
			Detail:  err.Error(),
		}
	}

	if observed != g.gateway.cfg.NetworkID {
		// never silently proceed on the wrong network
		return &Error{
			Code:    CodeEnvironmentViolation,
			Message: "connected to the wrong network",
			Detail:  fmt.Sprintf("expected network id %s, observed %s", g.gateway.cfg.NetworkID, observed),
		}
	}

	code, err := g.gateway.Code(ctx, g.gateway.cfg.ContractAddress)
	if err != nil {
		return &Error{
			Code:    CodeEnvironmentViolation,
			Message: "failed to read contract code",
			Detail:  err.Error(),
		}
	}
	if code == "" || code == "0x" {
		return &Error{
			Code:    CodeEnvironmentViolation,
			Message: "no contract deployed at configured address",
			Detail:  fmt.Sprintf("address %s has empty code", g.gateway.cfg.ContractAddress),
		}
	}

	return nil
}
