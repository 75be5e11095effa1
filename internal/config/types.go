package config

// Config is the optional per-repository configuration, read from
// .ubr.yaml at the repository root.
type Config struct {
	// Remote is the name of the remote the base branch, the per-commit
	// branches, and push/fetch all go through.
	Remote string `yaml:"remote"`

	// BranchPrefix is prepended to branch names derived from commit
	// subjects, e.g. "alice/".
	BranchPrefix string `yaml:"branch_prefix"`
}

// Default returns the configuration used when no .ubr.yaml exists.
func Default() *Config {
	return &Config{Remote: "origin"}
}
