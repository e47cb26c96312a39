package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/plansync/internal/observability"
)

var errNotInitialized = errors.New("plansync not initialized")

func requirePlans() error {
	if Plans == nil || Config == nil {
		return fmt.Errorf("%w: plan service unavailable", errNotInitialized)
	}
	return nil
}

// notify sends alerts when a notifier is configured. Failures are reported
// on stderr and never fail the command.
func notify(cmd *cobra.Command, alerts []observability.Alert) {
	if Notifier == nil || len(alerts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(commandContext(cmd), 15*time.Second)
	defer cancel()
	if err := Notifier.Notify(ctx, alerts); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s sending notification: %v\n", warnText(symbolWarning), err)
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
