package minio

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

const (
	rawPrefix     = "raw/"
	exportsPrefix = "exports/"
)

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// Object is a stored blob with its metadata.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Data        []byte
}

// ArtefactStore keeps raw inputs under raw/<session>/ and exports under
// exports/<session>/.
type ArtefactStore struct {
	client *Client
	logger logging.Logger
}

// NewArtefactStore binds the store to a client.
func NewArtefactStore(client *Client, log logging.Logger) *ArtefactStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ArtefactStore{client: client, logger: log}
}

// RawKey is the object key of an uploaded structure text.
func RawKey(id common.ID, label string) string {
	return rawPrefix + id.String() + "/" + safeName(label) + ".pdb"
}

// ExportKey is the object key of a named export artefact.
func ExportKey(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = safeName(p)
	}
	return exportsPrefix + strings.Join(parts, "/")
}

// safeName keeps object keys flat and printable: path separators and control
// characters become underscores.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// PutRaw stores the text a structure was parsed from.
func (s *ArtefactStore) PutRaw(ctx context.Context, id common.ID, label string, data []byte) (string, error) {
	key := RawKey(id, label)
	return key, s.put(ctx, key, "chemical/x-pdb", data, map[string]string{"session-id": id.String(), "label": label})
}

// PutArtefact stores an export under its name.
func (s *ArtefactStore) PutArtefact(ctx context.Context, name, contentType string, body []byte) (string, error) {
	key := ExportKey(name)
	return key, s.put(ctx, key, contentType, body, nil)
}

func (s *ArtefactStore) put(ctx context.Context, key, contentType string, data []byte, meta map[string]string) error {
	if err := s.client.check(); err != nil {
		return err
	}
	r, size := readerOf(data)
	_, err := s.client.api.PutObject(ctx, s.client.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		s.logger.Error("object upload failed", logging.String("key", key), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeExternalService, "object upload failed").WithDetail("key=" + key)
	}
	s.logger.Debug("object stored", logging.String("key", key), logging.Int64("size", size))
	return nil
}

// Get reads a whole object.
func (s *ArtefactStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := s.client.check(); err != nil {
		return nil, err
	}
	body, info, err := s.client.api.GetObject(ctx, s.client.bucket, key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail("key=" + key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "object download failed").WithDetail("key=" + key)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "object download failed").WithDetail("key=" + key)
	}
	return &Object{Key: key, ContentType: info.ContentType, Size: int64(len(data)), Data: data}, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

// PresignedURL returns a time-limited download URL. The file name in the
// Content-Disposition is the last key segment.
func (s *ArtefactStore) PresignedURL(ctx context.Context, key string) (string, error) {
	if err := s.client.check(); err != nil {
		return "", err
	}
	params := make(map[string][]string)
	params["response-content-disposition"] = []string{`attachment; filename="` + path.Base(key) + `"`}
	u, err := s.client.api.PresignedGetObject(ctx, s.client.bucket, key, s.client.presignExpiry, params)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to presign object").WithDetail("key=" + key)
	}
	return u.String(), nil
}

// DeleteSession removes every raw input and export of a session and returns
// how many objects were deleted.
func (s *ArtefactStore) DeleteSession(ctx context.Context, id common.ID) (int, error) {
	if err := s.client.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, prefix := range []string{rawPrefix + id.String() + "/", exportsPrefix + id.String() + "/"} {
		for obj := range s.client.api.ListObjects(ctx, s.client.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				return n, errors.Wrap(obj.Err, errors.ErrCodeExternalService, "failed to list objects")
			}
			if err := s.client.api.RemoveObject(ctx, s.client.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				return n, errors.Wrap(err, errors.ErrCodeExternalService, "failed to remove object").WithDetail("key=" + obj.Key)
			}
			n++
		}
	}
	if n > 0 {
		s.logger.Info("removed session objects", logging.String("session_id", id.String()), logging.Int("count", n))
	}
	return n, nil
}
