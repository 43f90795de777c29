package intake

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"
)

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

var uploadable = map[string]bool{".zip": true, ".pdf": true, ".xlsx": true}

// ExtractAttachments returns the parts of a raw message that can become an
// import session, together with the decoded subject.
func ExtractAttachments(raw []byte) (string, []Attachment, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", nil, err
	}

	parts := append([]*enmime.Part{}, env.Attachments...)
	parts = append(parts, env.Inlines...)

	out := make([]Attachment, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part.FileName)
		if name == "" || len(part.Content) == 0 {
			continue
		}
		if !uploadable[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		out = append(out, Attachment{Filename: name, ContentType: part.ContentType, Content: part.Content})
	}
	return env.GetHeader("Subject"), out, nil
}
