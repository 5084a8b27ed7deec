package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	tokenmiddleware "github.com/flownity-dev/flownity-backend-sub000"
	"github.com/flownity-dev/flownity-backend-sub000/core"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a single bearer credential",
	Long: `Runs one verification against the issuing provider and prints the
resulting identity or the rejection.

The credential is read from --token, or from the TOKENGATE_TOKEN environment
variable so it does not end up in shell history.`,
	Example: `  TOKENGATE_TOKEN=ghp_... tokengate verify
  tokengate verify --token ya29.a0Af... --provider google`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("TOKENGATE_TOKEN")
		}
		if token == "" {
			return errors.New("no credential given (use --token or TOKENGATE_TOKEN)")
		}
		allowed, _ := cmd.Flags().GetStringSlice("provider")

		engine, err := tokenmiddleware.NewEngine(cfg,
			tokenmiddleware.WithEngineLogger(tokenmiddleware.NewZerologLogger(log.Logger)),
			tokenmiddleware.WithEngineUserAgent("tokengate/"+BuildVersion),
		)
		if err != nil {
			return err
		}
		defer engine.Close()

		var opts []core.PolicyOption
		if len(allowed) > 0 {
			tags := make([]core.ProviderTag, 0, len(allowed))
			for _, p := range allowed {
				tags = append(tags, core.ProviderTag(strings.ToLower(p)))
			}
			opts = append(opts, core.AllowedProviders(tags...))
		}
		policy, err := engine.Core.NewPolicy(opts...)
		if err != nil {
			return err
		}

		outcome := engine.Core.Verify(cmd.Context(), "Bearer "+strings.TrimSpace(token), policy)
		renderOutcome(outcome)

		if outcome.Err != nil {
			return outcome.Err
		}
		return nil
	},
}

func renderOutcome(o core.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Value"})

	t.AppendRow(table.Row{"Status", o.Status.String()})
	if o.Identity != nil {
		t.AppendRows([]table.Row{
			{"Provider", o.Identity.Provider},
			{"ID", o.Identity.ID},
			{"Username", o.Identity.Username},
			{"Email", o.Identity.Email},
			{"Name", o.Identity.Name},
			{"Avatar", o.Identity.AvatarURL},
			{"Cached", o.Cached},
		})
	}
	if o.Err != nil {
		rej := tokenmiddleware.Describe(o.Err)
		t.AppendRows([]table.Row{
			{"Provider", o.Err.Provider},
			{"Kind", o.Err.Kind},
			{"Message", o.Err.Message},
			{"HTTP status", rej.Status},
		})
		if o.Err.ProviderStatus != 0 {
			t.AppendRow(table.Row{"Provider status", o.Err.ProviderStatus})
		}
		if o.Err.RetryAfter > 0 {
			t.AppendRow(table.Row{"Retry after", o.Err.RetryAfter})
		}
	}

	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
	t.Render()
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("token", "", "credential to verify, without the Bearer prefix")
	verifyCmd.Flags().StringSlice("provider", nil, "restrict to these providers (github, google)")
}
