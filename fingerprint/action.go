package fingerprint

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jonwraymond/proccache/digest"
)

// Property is a name/value pair: an environment variable or a platform
// property.
type Property struct {
	Name  string
	Value string
}

// Command is the canonical form of what to run.
type Command struct {
	Arguments         []string
	Env               []Property
	OutputFiles       []string
	OutputDirectories []string
	Platform          []Property
	WorkingDirectory  string
}

// Action is the canonical identity of an execution request. Its digest is
// the request's fingerprint.
type Action struct {
	Command       Command
	CommandDigest digest.Digest
	InputRoot     digest.Digest
	Timeout       time.Duration
	Salt          string
}

// Field numbers follow build.bazel.remote.execution.v2.
const (
	cmdArguments         protowire.Number = 1
	cmdEnvVars           protowire.Number = 2
	cmdOutputFiles       protowire.Number = 3
	cmdOutputDirectories protowire.Number = 4
	cmdPlatform          protowire.Number = 5
	cmdWorkingDirectory  protowire.Number = 6

	actionCommandDigest protowire.Number = 1
	actionInputRoot     protowire.Number = 2
	actionTimeout       protowire.Number = 6
	actionSalt          protowire.Number = 9

	propName  protowire.Number = 1
	propValue protowire.Number = 2

	platformProperties protowire.Number = 1

	durationSeconds protowire.Number = 1
	durationNanos   protowire.Number = 2
)

// Marshal encodes c deterministically.
func (c Command) Marshal() []byte {
	var b []byte
	for _, arg := range c.Arguments {
		b = appendString(b, cmdArguments, arg)
	}
	for _, env := range c.Env {
		b = appendMessage(b, cmdEnvVars, marshalProperty(env))
	}
	for _, p := range c.OutputFiles {
		b = appendString(b, cmdOutputFiles, p)
	}
	for _, p := range c.OutputDirectories {
		b = appendString(b, cmdOutputDirectories, p)
	}
	if len(c.Platform) > 0 {
		var pb []byte
		for _, prop := range c.Platform {
			pb = appendMessage(pb, platformProperties, marshalProperty(prop))
		}
		b = appendMessage(b, cmdPlatform, pb)
	}
	if c.WorkingDirectory != "" {
		b = appendString(b, cmdWorkingDirectory, c.WorkingDirectory)
	}
	return b
}

// Marshal encodes a deterministically. Zero-valued optional fields are
// omitted, as protobuf does.
func (a Action) Marshal() []byte {
	var b []byte
	b = digest.AppendField(b, actionCommandDigest, a.CommandDigest)
	b = digest.AppendField(b, actionInputRoot, a.InputRoot)
	if a.Timeout > 0 {
		secs, nanos := timeoutParts(a.Timeout)
		var db []byte
		if secs != 0 {
			db = protowire.AppendTag(db, durationSeconds, protowire.VarintType)
			db = protowire.AppendVarint(db, uint64(secs))
		}
		if nanos != 0 {
			db = protowire.AppendTag(db, durationNanos, protowire.VarintType)
			db = protowire.AppendVarint(db, uint64(nanos))
		}
		b = appendMessage(b, actionTimeout, db)
	}
	if a.Salt != "" {
		b = appendString(b, actionSalt, a.Salt)
	}
	return b
}

func marshalProperty(p Property) []byte {
	var b []byte
	b = appendString(b, propName, p.Name)
	b = appendString(b, propValue, p.Value)
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}
