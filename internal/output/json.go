package output

import (
	"encoding/json"
	"io"

	"panicscan/internal/analysis"
)

// jsonTrace is one streamed report record.
type jsonTrace struct {
	Pattern string      `json:"pattern"`
	Dynamic bool        `json:"contains_dynamic_invocations"`
	Frames  []jsonFrame `json:"frames"`
}

type jsonFrame struct {
	Function      string       `json:"function"`
	Crate         string       `json:"crate"`
	CrateVersion  string       `json:"crate_version,omitempty"`
	File          string       `json:"file,omitempty"`
	Line          int          `json:"line,omitempty"`
	EntryPoint    bool         `json:"entry_point,omitempty"`
	Reachable     bool         `json:"reachable_from_entry_point,omitempty"`
	IsPanic       bool         `json:"is_panic,omitempty"`
	IsPanicOrigin bool         `json:"is_panic_origin,omitempty"`
	Whitelisted   bool         `json:"whitelisted,omitempty"`
	Invocation    string       `json:"invocation_type,omitempty"`
	Inlined       []jsonInline `json:"inlined,omitempty"`
}

type jsonInline struct {
	Function string `json:"function"`
	Crate    string `json:"crate,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// printJSON streams one JSON object per trace.
func printJSON(w io.Writer, res *analysis.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, t := range res.Traces {
		rec := jsonTrace{Pattern: t.Pattern.String(), Dynamic: t.Dynamic}
		for _, s := range t.Steps {
			f := jsonFrame{
				Function:      s.Proc.DisplayName(),
				Crate:         s.Proc.Crate.Name,
				CrateVersion:  s.Proc.Crate.Version,
				EntryPoint:    s.Proc.Attributes.EntryPoint,
				Reachable:     s.Proc.Attributes.ReachableFromEntryPoint,
				IsPanic:       s.Proc.Attributes.IsPanic,
				IsPanicOrigin: s.Proc.Attributes.IsPanicOrigin,
				Whitelisted:   s.Proc.Attributes.Whitelisted,
			}
			if s.Proc.Location != nil {
				f.File = s.Proc.Location.File
				f.Line = s.Proc.Location.Line
			}
			if s.Via != nil {
				f.Invocation = s.Via.Type.String()
				for _, fr := range s.Via.Frames {
					f.Inlined = append(f.Inlined, jsonInline{
						Function: fr.Function,
						Crate:    fr.Crate.Name,
						File:     fr.Location.File,
						Line:     fr.Location.Line,
					})
				}
			}
			rec.Frames = append(rec.Frames, f)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
