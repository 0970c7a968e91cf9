package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

const (
	// ArtifactMagic はモデル成果物の先頭に記録される識別子
	ArtifactMagic = "HRISKGBT"

	// ArtifactFormatVersion は現在の成果物フォーマットのバージョン
	ArtifactFormatVersion = 1
)

// ArtifactHeader はモデル成果物の自己記述ヘッダー
//
// ヘッダーはペイロードより先にデコードされるため、ローダーは
// ペイロードを解釈する前に非互換な成果物を拒否できる。
type ArtifactHeader struct {
	Magic         string
	FormatVersion int
	Kind          string // ペイロードの種類 (例: "gbdt.binary_logistic")
	CreatedAt     time.Time
	FeatureNames  []string
	PayloadSize   int64
	Checksum      string // ペイロードのSHA-256 (16進数)
}

// EncodeArtifact はヘッダーとペイロードをwに書き込む
//
// パラメータ:
//   - w: 書き込み先
//   - kind: ペイロードの種類
//   - featureNames: モデルの特徴量名（列順）
//   - payload: gobでエンコード可能な値
//
// 戻り値:
//   - *ArtifactHeader: 書き込んだヘッダー
//   - error: エンコードに失敗した場合のエラー
func EncodeArtifact(w io.Writer, kind string, featureNames []string, payload interface{}) (*ArtifactHeader, error) {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return nil, errors.Wrap(err, "failed to encode model payload")
	}
	sum := sha256.Sum256(body.Bytes())

	header := &ArtifactHeader{
		Magic:         ArtifactMagic,
		FormatVersion: ArtifactFormatVersion,
		Kind:          kind,
		CreatedAt:     time.Now().UTC(),
		FeatureNames:  append([]string(nil), featureNames...),
		PayloadSize:   int64(body.Len()),
		Checksum:      hex.EncodeToString(sum[:]),
	}

	enc := gob.NewEncoder(w)
	if err := enc.Encode(header); err != nil {
		return nil, errors.Wrap(err, "failed to encode artifact header")
	}
	if err := enc.Encode(body.Bytes()); err != nil {
		return nil, errors.Wrap(err, "failed to write model payload")
	}
	return header, nil
}

// DecodeArtifact はrから成果物を読み込み、payloadにデコードする
//
// マジック・バージョン・種類・サイズ・チェックサムのいずれかが
// 一致しない場合はArtifactErrorを返す。
func DecodeArtifact(r io.Reader, name, expectedKind string, payload interface{}) (*ArtifactHeader, error) {
	dec := gob.NewDecoder(r)

	var header ArtifactHeader
	if err := dec.Decode(&header); err != nil {
		return nil, errors.NewArtifactError(name, "not a model artifact", err)
	}
	if err := checkHeader(name, &header, expectedKind); err != nil {
		return nil, err
	}

	var body []byte
	if err := dec.Decode(&body); err != nil {
		return nil, errors.NewArtifactError(name, "truncated payload", err)
	}
	if int64(len(body)) != header.PayloadSize {
		return nil, errors.NewArtifactError(name, "payload size mismatch",
			errors.Newf("header says %d bytes, found %d", header.PayloadSize, len(body)))
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != header.Checksum {
		return nil, errors.NewArtifactError(name, "checksum mismatch", nil)
	}

	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(payload); err != nil {
		return nil, errors.NewArtifactError(name, "failed to decode model payload", err)
	}
	return &header, nil
}

func checkHeader(name string, h *ArtifactHeader, expectedKind string) error {
	if h.Magic != ArtifactMagic {
		return errors.NewArtifactError(name, "not a model artifact", errors.Newf("magic %q", h.Magic))
	}
	if h.FormatVersion != ArtifactFormatVersion {
		return errors.NewArtifactError(name, "unsupported format version",
			errors.Newf("got %d, want %d", h.FormatVersion, ArtifactFormatVersion))
	}
	if expectedKind != "" && h.Kind != expectedKind {
		return errors.NewArtifactError(name, "unexpected model kind",
			errors.Newf("got %q, want %q", h.Kind, expectedKind))
	}
	return nil
}

// WriteArtifact は成果物をpathへアトミックに保存する
//
// 同じディレクトリの一時ファイルへ書き込み、fsync後にリネームするため、
// 読み手が書きかけのファイルを観測することはない。
//
// 使用例:
//
//	header, err := model.WriteArtifact("models/model.bin", "gbdt.binary_logistic", names, m)
func WriteArtifact(path, kind string, featureNames []string, payload interface{}) (*ArtifactHeader, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create artifact directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary artifact")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	header, err := EncodeArtifact(tmp, kind, featureNames, payload)
	if err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, errors.Wrap(err, "failed to sync artifact")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close artifact")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, errors.Wrapf(err, "failed to move artifact into place at %s", path)
	}
	committed = true
	return header, nil
}

// ReadArtifact はpathの成果物を検証してpayloadにデコードする
//
// ファイルが存在しない場合はErrArtifactNotFoundを、
// 存在するが読み込めない場合はArtifactErrorを返す。
// どちらも errors.Is(err, errors.ErrModelUnavailable) を満たす。
func ReadArtifact(path, expectedKind string, payload interface{}) (*ArtifactHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrArtifactNotFound, "%s", path)
		}
		return nil, errors.NewArtifactError(path, "cannot open", err)
	}
	defer f.Close()
	return DecodeArtifact(f, path, expectedKind, payload)
}

// ReadArtifactHeader はペイロードをデコードせずにヘッダーだけを読み込む
func ReadArtifactHeader(path string) (*ArtifactHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrArtifactNotFound, "%s", path)
		}
		return nil, errors.NewArtifactError(path, "cannot open", err)
	}
	defer f.Close()

	var header ArtifactHeader
	if err := gob.NewDecoder(f).Decode(&header); err != nil {
		return nil, errors.NewArtifactError(path, "not a model artifact", err)
	}
	if err := checkHeader(path, &header, ""); err != nil {
		return nil, err
	}
	return &header, nil
}
