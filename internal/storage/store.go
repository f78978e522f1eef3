package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// maxStorageResponse ограничивает служебные JSON-ответы хранилища.
const maxStorageResponse = 1 << 20

// ObjectStore - то, что нужно Mirror от хранилища объектов.
type ObjectStore interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
	PublicURL(path string) string
}

type BucketInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupabaseStore работает с REST API Supabase Storage одного бакета.
type SupabaseStore struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
}

func NewSupabaseStore(baseURL, key, bucket string, timeout time.Duration) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/") + "/storage/v1",
		key:     key,
		bucket:  bucket,
		http:    &http.Client{Timeout: timeout},
	}
}

func (s *SupabaseStore) Bucket() string { return s.bucket }

func (s *SupabaseStore) newRequest(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (s *SupabaseStore) do(req *http.Request, out any) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, maxStorageResponse)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StorageError{StatusCode: resp.StatusCode, Message: storageMessage(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}
	return nil
}

func (s *SupabaseStore) call(ctx context.Context, method, url string, body io.Reader, contentType string, out any) error {
	req, err := s.newRequest(ctx, method, url, body, contentType)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

// Upload кладет объект в бакет; существующий объект не перезаписывается.
// Возвращает путь объекта внутри бакета.
func (s *SupabaseStore) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	var out struct {
		Key string `json:"Key"`
	}
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)
	req, err := s.newRequest(ctx, http.MethodPost, url, bytes.NewReader(data), contentType)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-upsert", "false")
	if err := s.do(req, &out); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}
	// Key приходит вместе с именем бакета
	stored := strings.TrimPrefix(out.Key, s.bucket+"/")
	if stored == "" {
		stored = path
	}
	return stored, nil
}

// PublicURL строит публичный адрес объекта и исправляет задвоенное имя бакета.
func (s *SupabaseStore) PublicURL(path string) string {
	url := fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, strings.TrimPrefix(path, "/"))
	return fixBucketPath(url, s.bucket)
}

func fixBucketPath(url, bucket string) string {
	dup := "/" + bucket + "/" + bucket + "/"
	if strings.Contains(url, dup) {
		fixed := strings.Replace(url, dup, "/"+bucket+"/", 1)
		log.Printf("WARN: [Storage] fixed duplicated bucket in %s", url)
		return fixed
	}
	return url
}

func (s *SupabaseStore) Remove(ctx context.Context, paths ...string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/object/%s", s.baseURL, s.bucket)
	if err := s.call(ctx, http.MethodDelete, url, bytes.NewReader(body), "application/json", nil); err != nil {
		return fmt.Errorf("failed to remove %v: %w", paths, err)
	}
	log.Printf("INFO: [Storage] removed %v", paths)
	return nil
}

// CheckBucketAccess пробует получить один объект списка бакета.
func (s *SupabaseStore) CheckBucketAccess(ctx context.Context) bool {
	body := `{"prefix":"","limit":1,"offset":0}`
	url := fmt.Sprintf("%s/object/list/%s", s.baseURL, s.bucket)
	if err := s.call(ctx, http.MethodPost, url, strings.NewReader(body), "application/json", nil); err != nil {
		log.Printf("ERROR: [Storage] bucket %s is not accessible: %v", s.bucket, err)
		return false
	}
	return true
}

func (s *SupabaseStore) BucketInfo(ctx context.Context) (*BucketInfo, error) {
	var info BucketInfo
	url := fmt.Sprintf("%s/bucket/%s", s.baseURL, s.bucket)
	if err := s.call(ctx, http.MethodGet, url, nil, "", &info); err != nil {
		return nil, fmt.Errorf("failed to get bucket info: %w", err)
	}
	return &info, nil
}

type StorageError struct {
	StatusCode int
	Message    string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage responded %d: %s", e.StatusCode, e.Message)
}

func storageMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
