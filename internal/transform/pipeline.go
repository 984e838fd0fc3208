package transform

// Stage is one step of the transform pipeline. Handle mutates the Processable
// in place and must be a no-op when the stage's ProcessRecord flag is set.
type Stage interface {
	Name() string
	Handle(p *Processable)
}

// Pipeline runs a closed, ordered set of stages.
type Pipeline struct {
	stages []Stage
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: []Stage{Canvas{}, Resize{}},
	}
}

func (pl *Pipeline) Stages() []string {
	names := make([]string, 0, len(pl.stages))
	for _, s := range pl.stages {
		names = append(names, s.Name())
	}
	return names
}

func (pl *Pipeline) Execute(p *Processable) {
	for _, s := range pl.stages {
		s.Handle(p)
	}
}
