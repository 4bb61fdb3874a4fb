package pipeline

// StageName identifies a timed step of a build.
type StageName string

const (
	StageInstall  StageName = "install"
	StageBuild    StageName = "build"
	StageDocs     StageName = "docs"
	StageCopy     StageName = "copy"
	StageCodeview StageName = "codeview"
	StageIndex    StageName = "index"
	StageRewrite  StageName = "rewrite"
)

// StageTiming records how long a stage ran and whether it failed.
type StageTiming struct {
	Stage      StageName `json:"stage"`
	DurationMS int64     `json:"duration_ms"`
	Err        string    `json:"error,omitempty"`
}
