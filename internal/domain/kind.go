package domain

// ModelKind identifies one of the two independently loaded model lifecycles.
type ModelKind int

const (
	// KindExtractive is the span-finding question-answering model.
	KindExtractive ModelKind = iota
	// KindGenerative is the text2text model producing free-form answers.
	KindGenerative
)

// Task names reported alongside model identifiers.
const (
	TaskQuestionAnswering = "question-answering"
	TaskText2Text         = "text2text-generation"
)

// String returns the label used in health payloads, metrics and logs.
func (k ModelKind) String() string {
	switch k {
	case KindExtractive:
		return "extractive"
	case KindGenerative:
		return "abstractive"
	default:
		return "unknown"
	}
}
