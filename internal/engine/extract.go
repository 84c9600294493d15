package engine

import "github.com/morozRed/husk/internal/processor"

// extract merges artifacts by kind. Kinds keep the order they were first
// produced in and payloads keep source order inside a kind. The result is
// never nil so callers can tell "found but empty" from "nothing found".
func extract(artifacts []processor.Artifact) []processor.Artifact {
	out := make([]processor.Artifact, 0, len(artifacts))
	index := make(map[string]int)
	for _, artifact := range artifacts {
		i, ok := index[artifact.Kind]
		if !ok {
			index[artifact.Kind] = len(out)
			out = append(out, artifact)
			continue
		}
		switch {
		case artifact.Payload == "":
		case out[i].Payload == "":
			out[i].Payload = artifact.Payload
		default:
			out[i].Payload += "\n" + artifact.Payload
		}
	}
	return out
}
