package version

import "fmt"

var (
	Tag    = "v0.0.0-dev"
	Commit = "HEAD"
	Dirty  = false
)

type Version struct {
	Tag    string `json:"tag,omitempty"`
	Commit string `json:"commit,omitempty"`
	Dirty  bool   `json:"dirty,omitempty"`
}

func Get() Version {
	return Version{
		Tag:    Tag,
		Commit: Commit,
		Dirty:  Dirty,
	}
}

func (v Version) String() string {
	if v.Dirty {
		return fmt.Sprintf("%s-%s-dirty", v.Tag, v.Commit)
	}
	return fmt.Sprintf("%s (%s)", v.Tag, v.Commit)
}
