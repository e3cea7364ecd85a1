package cli

import (
	"fmt"
	"io"
	"strings"
)

// FlagCompletion describes a CLI flag for shell completion generation.
// All generators read flagRegistry, so a new flag only needs an entry there.
type FlagCompletion struct {
	Long      string   // long flag name without dashes (e.g. "mode")
	Short     string   // short flag without the dash (e.g. "q")
	Help      string   // description text
	Values    []string // suggested values (nil = boolean or free-form)
	ValueName string   // label of the value in zsh (e.g. "duration")
	IsFile    bool     // the flag takes a file path
}

// flagRegistry lists the flags offered by the completion scripts, grouped
// as they appear in -help.
var flagRegistry = []FlagCompletion{
	{Long: "help", Short: "h", Help: "Show help message"},
	{Long: "version", Short: "V", Help: "Show version information"},
	{Long: "config", Help: "YAML configuration file", IsFile: true, ValueName: "file"},
	{Long: "api-url", Help: "Base URL of the simulation API", ValueName: "url"},
	{Long: "country", Help: "Country id", Values: []string{"us", "uk", "ca", "ng", "il"}, ValueName: "country"},
	{Long: "mode", Help: "Calculation mode", Values: []string{"household", "societyWide", "districts"}, ValueName: "mode"},
	{Long: "target", Help: "Resource that owns the result", Values: []string{"simulation", "report"}, ValueName: "target"},
	{Long: "calc-id", Help: "Calculation id", ValueName: "id"},
	{Long: "population", Help: "Household id or geography", ValueName: "id"},
	{Long: "baseline", Help: "Baseline policy id", ValueName: "policy"},
	{Long: "reform", Help: "Reform policy id", ValueName: "policy"},
	{Long: "region", Help: "Region of a society-wide calculation", ValueName: "region"},
	{Long: "year", Help: "Time period", ValueName: "year"},
	{Long: "report-id", Help: "Parent report id", ValueName: "id"},
	{Long: "poll-interval", Help: "Interval between status polls", Values: []string{"500ms", "1s", "2s", "5s"}, ValueName: "duration"},
	{Long: "timeout", Help: "Maximum duration of the run", Values: []string{"1m", "5m", "15m", "30m", "1h"}, ValueName: "duration"},
	{Long: "max-poll-attempts", Help: "Maximum polls per fan-out region", ValueName: "count"},
	{Long: "concurrency", Help: "Fan-out regions in flight", ValueName: "count"},
	{Long: "rate-limit", Help: "Backend requests per second", ValueName: "rate"},
	{Long: "persist", Help: "Where results are persisted", Values: []string{"none", "api", "sqlite"}, ValueName: "backend"},
	{Long: "sqlite-path", Help: "SQLite ledger path", IsFile: true, ValueName: "file"},
	{Long: "redis-addr", Help: "Redis address of the shared status cache", ValueName: "addr"},
	{Long: "serve", Help: "Serve the HTTP status API"},
	{Long: "listen", Help: "Listen address of the status API", ValueName: "addr"},
	{Long: "tui", Help: "Interactive dashboard"},
	{Long: "interactive", Short: "i", Help: "Interactive session"},
	{Long: "output", Short: "o", Help: "Save results as JSON", IsFile: true, ValueName: "file"},
	{Long: "quiet", Short: "q", Help: "Print only the results"},
	{Long: "verbose", Short: "v", Help: "Print full result payloads"},
	{Long: "no-color", Help: "Disable colored output"},
	{Long: "log-level", Help: "Log level", Values: []string{"debug", "info", "warn", "error"}, ValueName: "level"},
	{Long: "completion", Help: "Generate completion script", Values: []string{"bash", "zsh", "fish", "powershell"}, ValueName: "shell"},
}

// GenerateCompletion writes the completion script of shell for the program
// named program.
func GenerateCompletion(out io.Writer, shell, program string) error {
	var script string
	switch shell {
	case "bash":
		script = bashCompletion(program)
	case "zsh":
		script = zshCompletion(program)
	case "fish":
		script = fishCompletion(program)
	case "powershell", "ps":
		script = powerShellCompletion(program)
	default:
		return fmt.Errorf("unsupported shell: %s (accepted values: bash, zsh, fish, powershell)", shell)
	}
	if _, err := fmt.Fprint(out, script); err != nil {
		return fmt.Errorf("completion %s generation failed: %w", shell, err)
	}
	return nil
}

// funcName turns a program name into a shell identifier.
func funcName(program string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(program)
}

func bashCompletion(program string) string {
	var opts []string
	var cases strings.Builder
	var files []string
	for _, f := range flagRegistry {
		opts = append(opts, "-"+f.Long)
		if f.Short != "" {
			opts = append(opts, "-"+f.Short)
		}
		switch {
		case f.IsFile:
			files = append(files, "-"+f.Long)
			if f.Short != "" {
				files = append(files, "-"+f.Short)
			}
		case len(f.Values) > 0:
			fmt.Fprintf(&cases, "        -%s|--%s)\n            COMPREPLY=( $(compgen -W \"%s\" -- \"${cur}\") )\n            return 0\n            ;;\n",
				f.Long, f.Long, strings.Join(f.Values, " "))
		}
	}
	if len(files) > 0 {
		fmt.Fprintf(&cases, "        %s)\n            COMPREPLY=( $(compgen -f -- \"${cur}\") )\n            return 0\n            ;;\n",
			strings.Join(files, "|"))
	}

	fn := funcName(program)
	return fmt.Sprintf(`# Bash completion script for %[1]s
# Add this to your ~/.bashrc or ~/.bash_completion

_%[2]s_completions() {
    local cur prev opts
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    opts="%[3]s"

    case "${prev}" in
%[4]s    esac

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=( $(compgen -W "${opts}" -- "${cur}") )
        return 0
    fi
}

complete -F _%[2]s_completions %[1]s
`, program, fn, strings.Join(opts, " "), cases.String())
}

// zshArgEntry formats a single FlagCompletion as a zsh _arguments entry.
func zshArgEntry(f FlagCompletion) string {
	valueSuffix := ""
	switch {
	case f.IsFile:
		valueSuffix = fmt.Sprintf(":%s:_files", f.ValueName)
	case len(f.Values) > 0:
		valueSuffix = fmt.Sprintf(":%s:(%s)", f.ValueName, strings.Join(f.Values, " "))
	case f.ValueName != "":
		valueSuffix = fmt.Sprintf(":%s:", f.ValueName)
	}
	if f.Short != "" {
		return fmt.Sprintf("        '(-%s -%s)'{-%s,-%s}'[%s]%s'", f.Short, f.Long, f.Short, f.Long, f.Help, valueSuffix)
	}
	return fmt.Sprintf("        '-%s[%s]%s'", f.Long, f.Help, valueSuffix)
}

func zshCompletion(program string) string {
	args := make([]string, 0, len(flagRegistry))
	for _, f := range flagRegistry {
		args = append(args, zshArgEntry(f))
	}
	fn := funcName(program)
	return fmt.Sprintf(`#compdef %[1]s

# Zsh completion script for %[1]s
# Add this to your ~/.zshrc or place in $fpath

_%[2]s() {
    _arguments -s \
%[3]s
}

_%[2]s "$@"
`, program, fn, strings.Join(args, " \\\n"))
}

// fishCompleteLine formats a single FlagCompletion as a fish complete command.
func fishCompleteLine(f FlagCompletion, program string) string {
	parts := []string{"complete -c " + program}
	if f.Short != "" {
		parts = append(parts, "-s "+f.Short)
	}
	parts = append(parts, "-o "+f.Long, fmt.Sprintf("-d '%s'", f.Help))
	switch {
	case f.IsFile:
		parts = append(parts, "-rF")
	case len(f.Values) > 0:
		parts = append(parts, fmt.Sprintf("-xa '%s'", strings.Join(f.Values, " ")))
	case f.ValueName != "":
		parts = append(parts, "-x")
	}
	return strings.Join(parts, " ")
}

func fishCompletion(program string) string {
	lines := []string{
		"# Fish completion script for " + program,
		fmt.Sprintf("# Add this to ~/.config/fish/completions/%s.fish", program),
		"",
		"complete -c " + program + " -f",
	}
	for _, f := range flagRegistry {
		lines = append(lines, fishCompleteLine(f, program))
	}
	return strings.Join(lines, "\n") + "\n"
}

func powerShellCompletion(program string) string {
	var options, switches []string
	for _, f := range flagRegistry {
		options = append(options, fmt.Sprintf("        @{Name = '-%s'; Description = '%s' }", f.Long, f.Help))
		if f.Short != "" {
			options = append(options, fmt.Sprintf("        @{Name = '-%s'; Description = '%s' }", f.Short, f.Help))
		}
		if len(f.Values) == 0 {
			continue
		}
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = "'" + v + "'"
		}
		switches = append(switches, fmt.Sprintf(`        '-%s' {
            @(%s) | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
                [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
            }
            return
        }`, f.Long, strings.Join(quoted, ", ")))
	}

	return fmt.Sprintf(`# PowerShell completion script for %[1]s
# Add this to your $PROFILE

Register-ArgumentCompleter -CommandName '%[1]s' -Native -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $options = @(
%[2]s
    )

    $elements = $commandAst.CommandElements
    $prevElement = if ($elements.Count -gt 2) { $elements[-2].ToString() } else { '' }

    switch ($prevElement) {
%[3]s
    }

    $options | Where-Object { $_.Name -like "$wordToComplete*" } | ForEach-Object {
        [System.Management.Automation.CompletionResult]::new($_.Name, $_.Name, 'ParameterName', $_.Description)
    }
}
`, program, strings.Join(options, "\n"), strings.Join(switches, "\n"))
}
