package types

type Version struct {
	Version               string `json:"version"`
	CLIVersionRequired    string `json:"cliVersionRequired"`
	CLIVersionRecommended string `json:"cliVersionRecommended"`
}

var CurrentVersion = Version{
	Version:               "1.3.2",
	CLIVersionRequired:    "1.2.0",
	CLIVersionRecommended: "1.3.2",
}
