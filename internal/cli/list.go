package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mascril/internal/measure"
	"github.com/banshee-data/mascril/internal/scripts"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [script]",
		Short: "List measurement scripts and their parameters",
		Long: `List the registered measurement scripts. With a script name, show its
parameters, defaults, observables and alarms.

Example:
  mascril list
  mascril list dc2gates --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := scripts.Names()
			if len(args) == 1 {
				names = args[:1]
			}
			var infos []scriptInfo
			for _, name := range names {
				s, err := scripts.Lookup(name)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to find script", err)
				}
				infos = append(infos, describe(s))
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(infos, func(w io.Writer) error {
				return writeScripts(w, infos, len(args) == 1)
			})
		},
	}
}

type paramInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Default string   `json:"default"`
	Options []string `json:"options,omitempty"`
	Help    string   `json:"help,omitempty"`
}

type alarmInfo struct {
	Name     string `json:"name"`
	Expr     string `json:"expr"`
	Severity string `json:"severity"`
}

type scriptInfo struct {
	Name        string      `json:"name"`
	Simulated   bool        `json:"simulated"`
	Params      []paramInfo `json:"params"`
	Observables []string    `json:"observables"`
	Alarms      []alarmInfo `json:"alarms,omitempty"`
}

func describe(s measure.Script) scriptInfo {
	_, sim := s.(scripts.Simulated)
	info := scriptInfo{Name: s.Name(), Simulated: sim, Observables: s.Observables()}
	for _, spec := range s.Schema().Specs() {
		info.Params = append(info.Params, paramInfo{
			Name:    spec.Name,
			Kind:    string(spec.Kind),
			Default: fmt.Sprint(spec.Default),
			Options: spec.Options,
			Help:    spec.Help,
		})
	}
	for _, r := range s.Alarms() {
		name := r.Name
		if name == "" {
			name = r.Expr
		}
		info.Alarms = append(info.Alarms, alarmInfo{Name: name, Expr: r.Expr, Severity: r.Severity.String()})
	}
	return info
}

func writeScripts(w io.Writer, infos []scriptInfo, detail bool) error {
	if !detail {
		for _, info := range infos {
			fmt.Fprintln(w, info.Name)
		}
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(w, "%s\n\n", info.Name)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PARAM\tKIND\tDEFAULT\tHELP")
		for _, p := range info.Params {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Kind, p.Default, p.Help)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nObservables: %v\n", info.Observables)
		for _, a := range info.Alarms {
			fmt.Fprintf(w, "Alarm [%s] %s\n", a.Severity, a.Expr)
		}
	}
	return nil
}
