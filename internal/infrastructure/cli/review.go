package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/RickCogley/aichaku-sub007/internal/application"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/config"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
)

var (
	reviewExternal bool
	reviewTool     string
	reviewJSON     bool
)

var severityError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
var severityWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
var severityInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
var excludedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
var fileStyle = lipgloss.NewStyle().Bold(true)

var reviewCmd = &cobra.Command{
	Use:   "review <file>...",
	Short: "Review files once, without a server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return MapError(err)
		}
		excl, warnings, err := config.LoadExclusions(cfg.ExclusionsFile)
		if err != nil {
			return MapError(err)
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}

		engine, err := newExclusionEngine(cfg, excl)
		if err != nil {
			return MapError(err)
		}
		registry := scanner.NewRegistry(scanner.RegistryConfig{
			Enabled:        cfg.Scan.Scanners,
			CodeQLDatabase: cfg.Scan.CodeQLDatabase,
		}, nil)
		svc := application.NewReviewService(engine, registry,
			application.WithScanTimeout(cfg.Scan.Timeout))

		exitCode := 0
		for _, file := range args {
			result := svc.Review(cmd.Context(), review.Request{
				File:            file,
				IncludeExternal: reviewExternal,
				Tool:            reviewTool,
			})
			if reviewJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				renderResult(cmd, file, result)
			}
			if len(result.Findings) > 0 {
				exitCode = 2
			}
		}
		if exitCode != 0 {
			os.Exit(exitCode)
		}
		return nil
	},
}

func renderResult(cmd *cobra.Command, file string, result review.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, fileStyle.Render(file))

	if result.Excluded {
		fmt.Fprintf(out, "  %s\n", excludedStyle.Render("excluded: "+result.ExcludeReason))
		return
	}
	if len(result.Findings) == 0 {
		fmt.Fprintln(out, "  no findings")
	}
	for _, f := range result.Findings {
		style := severityStyle(f.Severity)
		loc := ""
		if f.Line > 0 {
			loc = fmt.Sprintf(":%d", f.Line)
		}
		fmt.Fprintf(out, "  %s %s%s %s (%s/%s)\n",
			style.Render(string(f.Severity)), file, loc, f.Message, f.Scanner, f.Rule)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if result.Stats.TotalIssues > 0 {
		fmt.Fprintf(out, "  %d issues\n", result.Stats.TotalIssues)
	}
}

func severityStyle(s review.Severity) lipgloss.Style {
	switch s {
	case review.SeverityError:
		return severityError
	case review.SeverityWarning:
		return severityWarning
	default:
		return severityInfo
	}
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewExternal, "external", false, "Also run installed external scanners")
	reviewCmd.Flags().StringVar(&reviewTool, "tool", "", "Restrict the review to one scanner")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Emit raw JSON results")
	RootCmd.AddCommand(reviewCmd)
}
