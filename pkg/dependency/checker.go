package dependency

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Dependency represents a system dependency
type Dependency struct {
	Name        string
	Command     string
	Args        []string
	Required    bool
	Description string
	InstallCmd  string
}

// CheckResult represents the result of a dependency check
type CheckResult struct {
	Dependency  Dependency
	Available   bool
	Version     string
	Error       error
	InstallHint string
}

// Runner runs a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Checker handles dependency checking
type Checker struct {
	timeout time.Duration
	run     Runner
}

// NewChecker creates a new dependency checker
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		timeout: timeout,
		run:     execRunner,
	}
}

// CheckAll checks all dependencies and returns results
func (c *Checker) CheckAll(ctx context.Context, deps []Dependency) []CheckResult {
	return lo.Map(deps, func(dep Dependency, _ int) CheckResult {
		return c.checkSingle(ctx, dep)
	})
}

func (c *Checker) checkSingle(ctx context.Context, dep Dependency) CheckResult {
	result := CheckResult{Dependency: dep}

	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(cmdCtx, dep.Command, dep.Args...)
	if err != nil {
		result.Error = err
		result.InstallHint = dep.InstallCmd
		return result
	}

	result.Available = true
	// Only the first line carries the version; ffmpeg prints its build flags after it.
	result.Version = strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	return result
}

// SystemDependencies returns the external programs the bot calls. ffmpeg is
// always needed by the encoder; yt-dlp only when the playlist fallback is on.
func SystemDependencies(requireYtdlp bool) []Dependency {
	return []Dependency{
		{
			Name:        "FFmpeg",
			Command:     "ffmpeg",
			Args:        []string{"-version"},
			Required:    true,
			Description: "Decodes the audio stream for the Opus encoder",
			InstallCmd:  "brew install ffmpeg (macOS) | apt-get install ffmpeg (Ubuntu) | yum install ffmpeg (CentOS)",
		},
		{
			Name:        "yt-dlp",
			Command:     "yt-dlp",
			Args:        []string{"--version"},
			Required:    requireYtdlp,
			Description: "Lists playlist entries when the YouTube client cannot",
			InstallCmd:  "pip install yt-dlp | brew install yt-dlp",
		},
	}
}

// ValidateEnvironment checks every system dependency.
func ValidateEnvironment(ctx context.Context, requireYtdlp bool) *EnvironmentReport {
	return NewChecker(10*time.Second).Validate(ctx, SystemDependencies(requireYtdlp))
}

// Validate checks deps and summarizes the outcome.
func (c *Checker) Validate(ctx context.Context, deps []Dependency) *EnvironmentReport {
	report := &EnvironmentReport{
		CheckTime: time.Now(),
		Results:   c.CheckAll(ctx, deps),
	}
	report.analyzeResults()
	return report
}

// EnvironmentReport contains the results of environment validation
type EnvironmentReport struct {
	CheckTime         time.Time
	Results           []CheckResult
	RequiredMissing   []string
	OptionalMissing   []string
	RecommendedAction string
	Severity          string
}

func (r *EnvironmentReport) analyzeResults() {
	missing := lo.Filter(r.Results, func(res CheckResult, _ int) bool { return !res.Available })
	required, optional := lo.FilterReject(missing, func(res CheckResult, _ int) bool { return res.Dependency.Required })

	name := func(res CheckResult, _ int) string { return res.Dependency.Name }
	r.RequiredMissing = lo.Map(required, name)
	r.OptionalMissing = lo.Map(optional, name)

	switch {
	case len(r.RequiredMissing) > 0:
		r.Severity = "CRITICAL"
		r.RecommendedAction = "Install required dependencies before starting the application"
	case len(r.OptionalMissing) > 0:
		r.Severity = "WARNING"
		r.RecommendedAction = "Consider installing optional dependencies for full functionality"
	default:
		r.Severity = "OK"
		r.RecommendedAction = "All dependencies are available"
	}
}

// IsHealthy returns true if all required dependencies are available
func (r *EnvironmentReport) IsHealthy() bool {
	return len(r.RequiredMissing) == 0
}

// GetInstallCommands returns installation commands for missing dependencies
func (r *EnvironmentReport) GetInstallCommands() []string {
	var commands []string
	for _, result := range r.Results {
		if !result.Available && result.InstallHint != "" {
			commands = append(commands, fmt.Sprintf("# %s\n%s", result.Dependency.Description, result.InstallHint))
		}
	}
	return commands
}

// GenerateReport generates a human-readable report
func (r *EnvironmentReport) GenerateReport() string {
	var report strings.Builder

	report.WriteString("=== Alfred Environment Report ===\n")
	fmt.Fprintf(&report, "Check Time: %s\n", r.CheckTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&report, "Severity: %s\n", r.Severity)
	fmt.Fprintf(&report, "Recommended Action: %s\n\n", r.RecommendedAction)

	report.WriteString("Dependency Status:\n")
	for _, result := range r.Results {
		status := "✓ Available"
		if !result.Available {
			status = "✗ Missing"
		}

		required := ""
		if result.Dependency.Required {
			required = " (Required)"
		}

		fmt.Fprintf(&report, "  %s: %s%s\n", result.Dependency.Name, status, required)
		if result.Version != "" {
			fmt.Fprintf(&report, "    Version: %s\n", result.Version)
		}
		if result.Error != nil {
			fmt.Fprintf(&report, "    Error: %s\n", result.Error.Error())
		}
	}

	if len(r.RequiredMissing) > 0 {
		report.WriteString("\n⚠️  Required Dependencies Missing:\n")
		for _, dep := range r.RequiredMissing {
			fmt.Fprintf(&report, "  - %s\n", dep)
		}
	}

	if len(r.OptionalMissing) > 0 {
		report.WriteString("\nOptional Dependencies Missing:\n")
		for _, dep := range r.OptionalMissing {
			fmt.Fprintf(&report, "  - %s\n", dep)
		}
	}

	if cmds := r.GetInstallCommands(); len(cmds) > 0 {
		report.WriteString("\nInstallation Commands:\n")
		for _, cmd := range cmds {
			fmt.Fprintf(&report, "%s\n\n", cmd)
		}
	}

	return report.String()
}

// HasOpusEncoder reports whether ffmpeg was built with libopus.
func (c *Checker) HasOpusEncoder(ctx context.Context) (bool, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.run(cmdCtx, "ffmpeg", "-hide_banner", "-encoders")
	if err != nil {
		return false, fmt.Errorf("failed to list FFmpeg encoders: %w", err)
	}
	return strings.Contains(string(output), "libopus"), nil
}
