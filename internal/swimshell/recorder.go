package swimshell

// Recorder observes shell activity for metrics purposes. It is an
// ambient, swappable collaborator: the shell never requires a real
// metrics backend to run, so the zero value of Shell's config falls
// back to NopRecorder.
type Recorder interface {
	ProbeSent(kind string)
	ProbeTimedOut(kind string)
	AckReceived(kind string)
	SuspicionRaised()
	DirectiveHandled(kind string)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) ProbeSent(string)        {}
func (NopRecorder) ProbeTimedOut(string)    {}
func (NopRecorder) AckReceived(string)      {}
func (NopRecorder) SuspicionRaised()        {}
func (NopRecorder) DirectiveHandled(string) {}
