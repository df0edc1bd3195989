package script

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// setlistFile is the YAML schema for a setlist snapshot.
//
//	title: Tuesday tight five
//	lines:
//	  - id: opener
//	    text: "So I moved in with my girlfriend's cat."
//	    anchor: "moved in with"
//	  - text: "The cat pays more rent than I do."
//	    exit: "anyway, landlords"
type setlistFile struct {
	Title string     `yaml:"title"`
	Lines []lineSpec `yaml:"lines"`
}

type lineSpec struct {
	ID     string `yaml:"id"`
	Text   string `yaml:"text"`
	Anchor string `yaml:"anchor"`
	Exit   string `yaml:"exit"`
}

// Load reads a setlist snapshot YAML file at path and returns the Script.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader decodes a setlist snapshot from r. Useful in tests and
// for scripts delivered inline over the session socket.
func LoadFromReader(r io.Reader) (*Script, error) {
	var file setlistFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("script: decode yaml: %w", err)
	}

	lines := make([]Line, len(file.Lines))
	for i, ls := range file.Lines {
		lines[i] = Line{
			ID:           ls.ID,
			Text:         ls.Text,
			AnchorPhrase: ls.Anchor,
			ExitPhrase:   ls.Exit,
		}
	}
	return New(file.Title, lines)
}
