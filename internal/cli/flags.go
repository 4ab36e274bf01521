package cli

// Flags holds all command-line flag values
type Flags struct {
	// General flags
	CfgFile     string
	Concurrency int
	Recursive   bool
	NoBackup    bool
	NoCache     bool
	NoResume    bool
	DryRun      bool
	LogLevel    string
	LogFormat   string

	// Translation flags
	Provider       string
	Model          string
	SourceLanguage string
	TargetLanguage string
	Template       string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		Recursive: true,
	}
}
