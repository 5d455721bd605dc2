package model

import (
	"bufio"
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// Magic and FormatVersion prefix every encoded model so that foreign or
// outdated files are rejected before gob sees them.
const (
	Magic         = "PROPVAL-MODEL"
	FormatVersion = 1
)

type header struct {
	Magic   string
	Version int
}

// SaveModelToWriter はモデルをio.Writerに保存する
//
// Interface-typed fields inside model must have their concrete types
// registered with gob.Register beforehand.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	bw := bufio.NewWriter(w)
	encoder := gob.NewEncoder(bw)
	if err := encoder.Encode(header{Magic: Magic, Version: FormatVersion}); err != nil {
		return errors.Wrap(err, "failed to encode model header")
	}
	if err := encoder.Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return errors.WithStack(bw.Flush())
}

// LoadModelFromReader はio.Readerからモデルを読み込む
//
// model must be a pointer. Any decoding problem, including a wrong magic or
// version, is reported as a ValueError so callers can classify it as a
// malformed artifact.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(bufio.NewReader(r))
	var h header
	if err := decoder.Decode(&h); err != nil {
		return errors.NewValueError("LoadModel", "cannot decode model header: "+err.Error())
	}
	if h.Magic != Magic {
		return errors.NewValueError("LoadModel", "not a model file")
	}
	if h.Version != FormatVersion {
		return errors.NewValueError("LoadModel", "unsupported model format version")
	}
	if err := decoder.Decode(model); err != nil {
		return errors.NewValueError("LoadModel", "cannot decode model: "+err.Error())
	}
	return nil
}
