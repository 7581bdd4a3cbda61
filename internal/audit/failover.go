package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	SpoolDir           = "/var/lib/ts-lms/audit_spool"
	MaxSpoolSize int64 = 256 * 1024 * 1024
)

func ConfigureFailover(dir string, maxMB int64) {
	if dir != "" {
		SpoolDir = dir
	}
	if maxMB > 0 {
		MaxSpoolSize = maxMB * 1024 * 1024
	}
	_ = os.MkdirAll(SpoolDir, 0750)
}

// SpoolEntry appends an entry to the local JSONL spool.
func SpoolEntry(e Entry) error {
	if spoolSize() >= MaxSpoolSize {
		return fmt.Errorf("audit spool full (%d bytes)", MaxSpoolSize)
	}

	line, err := json.Marshal(spooledEntry{
		EventID:   e.EventID.String(),
		Payload:   e,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(SpoolDir, "audit_spool.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func spoolSize() int64 {
	var size int64
	filepath.Walk(SpoolDir, func(_ string, info fs.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

// StartReplayer flushes the spool back to the database in the background.
func (s *Service) StartReplayer(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

var replayLock sync.Mutex

// ReplaySpool re-inserts spooled entries. The spool file is renamed first so
// concurrent writers keep appending to a fresh file; entries that still fail
// are written back to the spool and counted as pending, not flushed. EventID
// idempotency makes replaying an already-committed entry a no-op.
func (s *Service) ReplaySpool(ctx context.Context) {
	replayLock.Lock()
	defer replayLock.Unlock()

	filename := filepath.Join(SpoolDir, "audit_spool.log")
	info, err := os.Stat(filename)
	if os.IsNotExist(err) || (info != nil && info.Size() == 0) {
		return
	}

	replayFile := filepath.Join(SpoolDir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(filename, replayFile); err != nil {
		log.Printf("Audit replay: failed to rotate spool: %v", err)
		return
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	var succeeded, respooled int

	for scanner.Scan() {
		var se spooledEntry
		if err := json.Unmarshal(scanner.Bytes(), &se); err != nil {
			continue
		}
		if err := s.insert(ctx, se.Payload); err != nil {
			if spoolErr := SpoolEntry(se.Payload); spoolErr != nil {
				log.Printf("CRITICAL: audit re-spool failed for entry %s: %v", se.Payload.EventID, spoolErr)
			} else {
				respooled++
			}
			continue
		}
		succeeded++
	}

	f.Close()
	os.Remove(replayFile)

	if succeeded > 0 || respooled > 0 {
		log.Printf("Audit replay: %d entries flushed, %d still pending", succeeded, respooled)
	}
}
