// Package cmd implements the dzip commands on top of go-flags.
package cmd

import (
	"github.com/jessevdk/go-flags"
)

type Dzip struct {
	Create Create `command:"create" alias:"c" description:"create a reproducible zip archive from a directory"`
	List   List   `command:"list" alias:"ls" description:"list the entries of zip archives"`
	Verify Verify `command:"verify" alias:"v" description:"verify the checksums of zip archives"`
}

func NewParser() (*flags.Parser, error) {
	opts := &Dzip{}

	p := flags.NewNamedParser("dzip", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	return p, nil
}
