package genai

import "strings"

// Message is one prompt message.
type Message struct {
	Role    string
	Content string
}

// Request is the provider-independent view of a call's arguments. Zero
// values and nil pointers mean the argument was not supplied.
type Request struct {
	System    string
	Operation string
	Model     string
	Stream    bool

	ServerAddress string
	ServerPort    int
	// Endpoint names the client API surface, e.g. "openai.chat.completions".
	Endpoint string

	Messages []Message
	// Input holds embedding inputs, speech text or a completion prompt.
	Input []string

	Temperature      *float64
	TopP             *float64
	MaxTokens        *int64
	Seed             *int64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	User             string
	ToolCount        int
	EncodingFormat   string

	ImageSize    string
	ImageQuality string
	ImageStyle   string
	ImageCount   int

	Voice       string
	AudioFormat string
	AudioSpeed  *float64

	DBSystem     string
	DBOperation  string
	DBCollection string
	DBNResults   *int64
}

// PromptText joins messages as "role: content" lines followed by inputs.
func (r Request) PromptText() string {
	var b strings.Builder
	for _, m := range r.Messages {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if m.Role != "" {
			b.WriteString(m.Role)
			b.WriteString(": ")
		}
		b.WriteString(m.Content)
	}
	for _, in := range r.Input {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(in)
	}
	return b.String()
}

// Environment is the immutable deployment context attached to every span.
type Environment struct {
	ApplicationName string
	Environment     string
	CaptureContent  bool
}
