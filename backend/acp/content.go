package acp

import "github.com/sessiond/agentbridge"

// buildPromptBlocks maps the unified ContentBlock union onto ACP's prompt
// content block shape. ACP has no first-class tool_use/tool_result block
// in a user-authored prompt (those only appear in agent-emitted updates),
// so only the content a caller can legitimately send is supported here.
func buildPromptBlocks(blocks []agentbridge.ContentBlock) ([]wireContentBlock, error) {
	out := make([]wireContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case agentbridge.ContentText:
			out = append(out, wireContentBlock{Type: "text", Text: b.Text})
		case agentbridge.ContentImage:
			wb := wireContentBlock{Type: "image"}
			switch b.Source.Kind {
			case agentbridge.ImageSourceBase64:
				wb.Data = b.Source.Data
				wb.MimeType = b.Source.MediaType
			case agentbridge.ImageSourceURL:
				wb.URI = b.Source.URL
			default:
				return nil, agentbridge.ErrUnsupported
			}
			out = append(out, wb)
		case agentbridge.ContentResourceLink, agentbridge.ContentResource:
			out = append(out, wireContentBlock{Type: "resource_link", URI: b.URI, MimeType: b.MediaType})
		default:
			return nil, agentbridge.ErrUnsupported
		}
	}
	return out, nil
}
