package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// SaveGob はvをgob形式でファイルに保存する。
// 一時ファイルに書き込んでからrenameするため、途中で失敗しても既存のファイルは壊れない。
//
// 使用例:
//
//	err := model.SaveGob(split, "results/.cache/prepared.gob")
func SaveGob(v interface{}, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrap(err, "failed to create snapshot directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer os.Remove(tmp.Name())

	if err := SaveGobToWriter(v, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to flush snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), filename), "failed to install snapshot")
}

// LoadGob はファイルからgobスナップショットを読み込む
func LoadGob(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return LoadGobFromReader(v, file)
}

// SaveGobToWriter はvをio.Writerに保存する
func SaveGobToWriter(v interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}
	return nil
}

// LoadGobFromReader はio.Readerから読み込む
func LoadGobFromReader(v interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode snapshot")
	}
	return nil
}
