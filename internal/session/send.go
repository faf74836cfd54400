package session

import (
	"io"
	"os"
	"path/filepath"

	"github.com/williampepple1/witra/internal/wire"
)

// SendFile opens path and streams it to the peer as transferID's (only, or
// current) file. relativePath carries folder structure for multi-file
// transfers; totalFiles/currentFileIndex are both 1 for a lone file (spec
// §4.3).
func (s *Session) SendFile(path, transferID, relativePath string, totalFiles, currentFileIndex int) {
	s.enqueue(func(s *Session) { s.startSendFile(path, transferID, relativePath, totalFiles, currentFileIndex) })
}

// SendFolder enumerates every regular file under path recursively and sends
// a folder_header followed by one file_header/file_data/file_complete
// sequence per file (spec §4.3).
//
// Grounded on original_source/src/network/TransferSession.cpp's sendFolder:
// the listing is taken once, up front, and is not re-validated as each file
// is sent, so a file removed mid-transfer fails that one file rather than
// the whole folder (spec §9).
func (s *Session) SendFolder(path, transferID string) {
	s.enqueue(func(s *Session) {
		files, err := listFilesRecursive(path)
		if err != nil {
			s.fail(transferID, "cannot read folder: "+err.Error())
			return
		}
		if len(files) == 0 {
			s.fail(transferID, "folder is empty")
			return
		}

		folderName := filepath.Base(filepath.Clean(path))
		if err := s.writeHeader(wire.TransferHeader{
			Type:       wire.TransferFolderHeader,
			TransferID: transferID,
			FileName:   folderName,
			TotalFiles: int64(len(files)),
		}); err != nil {
			s.teardown(err)
			return
		}

		base := filepath.Dir(filepath.Clean(path))
		s.sendFolderFiles(files, base, folderName, transferID, 0)
	})
}

// sendFolderFiles starts files[idx] once the previous file has finished
// streaming, then enqueues itself for idx+1 — giving the actor loop a
// chance to process any pending inbound frames or a Cancel between files,
// the same yield point the original implementation gets for free from its
// event loop.
func (s *Session) sendFolderFiles(files []string, base, folderName, transferID string, idx int) {
	if s.cancelRequested.Load() || idx >= len(files) {
		return
	}
	if s.send.file != nil {
		// The previous file is still streaming; check again after its next chunk.
		s.enqueue(func(s *Session) { s.sendFolderFiles(files, base, folderName, transferID, idx) })
		return
	}
	rel, err := filepath.Rel(base, files[idx])
	if err != nil {
		rel = filepath.Base(files[idx])
	}
	relativePath := filepath.ToSlash(filepath.Join(folderName, rel))
	s.startSendFile(files[idx], transferID, relativePath, len(files), idx+1)
	s.enqueue(func(s *Session) { s.sendFolderFiles(files, base, folderName, transferID, idx+1) })
}

func listFilesRecursive(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

func (s *Session) startSendFile(path, transferID, relativePath string, totalFiles, currentFileIndex int) {
	if s.send.file != nil {
		_ = s.send.file.Close()
		s.send.file = nil
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.fail(transferID, "file not found: "+path)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.fail(transferID, "cannot open file: "+err.Error())
		return
	}

	s.send.transferID = transferID
	s.send.file = f
	s.send.totalSize = info.Size()
	s.send.sent = 0
	s.cancelRequested.Store(false)

	rel := relativePath
	if rel == "" {
		rel = filepath.Base(path)
	}
	if err := s.writeHeader(wire.TransferHeader{
		Type:             wire.TransferFileHeader,
		TransferID:       transferID,
		FileName:         filepath.Base(path),
		RelativePath:      rel,
		FileSize:         info.Size(),
		TotalFiles:       int64(totalFiles),
		CurrentFileIndex: int64(currentFileIndex),
	}); err != nil {
		s.teardown(err)
		return
	}
	s.state = Transferring
	s.emit(Event{
		Kind:       EventTransferStarted,
		TransferID: transferID,
		FileName:   filepath.Base(path),
		TotalSize:  info.Size(),
		TotalFiles: totalFiles,
		FileIndex:  currentFileIndex,
	})
	s.sendChunk()
}

// sendChunk writes one chunk of the file currently being sent and, unless
// the file is finished or cancelled, enqueues itself again. Re-enqueuing
// (rather than looping in place) is the cooperative yield point: any
// inbound frame or Cancel queued meanwhile runs before the next chunk goes
// out (spec §5).
func (s *Session) sendChunk() {
	if s.send.file == nil {
		return
	}
	if s.cancelRequested.Load() {
		s.abortSend("cancelled locally")
		return
	}

	buf := make([]byte, wire.ChunkSize)
	n, err := s.send.file.Read(buf)
	if n > 0 {
		if werr := wire.WriteDataFrame(s.conn, buf[:n]); werr != nil {
			s.teardown(werr)
			return
		}
		s.send.sent += int64(n)
		s.emit(Event{Kind: EventTransferProgress, TransferID: s.send.transferID, Sent: s.send.sent, TotalSize: s.send.totalSize})
	}
	if err != nil {
		if err == io.EOF {
			s.finishSend()
			return
		}
		s.fail(s.send.transferID, "read failed: "+err.Error())
		s.abortSend(err.Error())
		return
	}
	s.enqueue(func(s *Session) { s.sendChunk() })
}

func (s *Session) finishSend() {
	transferID := s.send.transferID
	_ = s.send.file.Close()
	s.send.file = nil

	if err := s.writeHeader(wire.TransferHeader{Type: wire.TransferFileComplete, TransferID: transferID}); err != nil {
		s.teardown(err)
		return
	}
	s.emit(Event{Kind: EventTransferCompleted, TransferID: transferID})
	s.state = Accepted
}

func (s *Session) abortSend(reason string) {
	if s.send.file != nil {
		_ = s.send.file.Close()
		s.send.file = nil
	}
	s.state = Idle
}

// Cancel requests that the in-progress outgoing transfer stop at the next
// chunk boundary and notifies the peer. Cancel also covers the mirror
// case, an in-progress incoming transfer: its partially written file is
// deleted, matching original_source/src/network/TransferSession.cpp's
// cancelTransfer, which tears down whichever of m_currentFile/m_sendFile
// is active. It can be called from any goroutine; the actual abort
// happens on the actor loop.
func (s *Session) Cancel(transferID string) {
	s.cancelRequested.Store(true)
	s.enqueue(func(s *Session) {
		_ = s.writeHeader(wire.TransferHeader{Type: wire.TransferCancel, TransferID: transferID})
		if s.recv.file != nil && s.recv.transferID == transferID {
			name := s.recv.file.Name()
			_ = s.recv.file.Close()
			_ = os.Remove(name)
			s.recv.file = nil
		}
		s.fail(transferID, "cancelled locally")
	})
}
