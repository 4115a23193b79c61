package main

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// IngestedFile records a CSV that was already written to a collection.
type IngestedFile struct {
	FilePath   string    `json:"file_path"`
	FileHash   string    `json:"file_hash"`
	Collection string    `json:"collection"`
	Documents  int       `json:"documents"`
	IngestedAt time.Time `json:"ingested_at"`
}

// CacheData is keyed by "<collection>:<file path>".
type CacheData struct {
	Files map[string]IngestedFile `json:"files"`
}

func cacheKey(collection, path string) string {
	return collection + ":" + path
}

// Unchanged reports whether path was ingested into collection with the same hash.
func (c *CacheData) Unchanged(collection, path, hash string) (IngestedFile, bool) {
	entry, ok := c.Files[cacheKey(collection, path)]
	return entry, ok && hash != "" && entry.FileHash == hash
}

func (c *CacheData) Record(entry IngestedFile) {
	c.Files[cacheKey(entry.Collection, entry.FilePath)] = entry
}

func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{Files: make(map[string]IngestedFile)}

	data, err := os.ReadFile(cacheFile)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if cache.Files == nil {
		cache.Files = make(map[string]IngestedFile)
	}

	return cache, nil
}

func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
