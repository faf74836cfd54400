package session

import (
	"os"

	"github.com/williampepple1/witra/internal/wire"
)

// handleFileHeader processes a file_header frame. A folder_header (sent
// once before the first file of a multi-file transfer) carries no handler
// of its own: the receiver learns totalFiles/currentFileIndex from every
// individual file_header instead, matching
// original_source/src/network/TransferSession.cpp's processMessage, whose
// dispatch table has no FOLDER_HEADER branch.
func (s *Session) handleFileHeader(h wire.TransferHeader) {
	if s.recv.file != nil {
		_ = s.recv.file.Close()
		s.recv.file = nil
	}

	s.recv.transferID = h.TransferID
	s.recv.fileName = h.FileName
	s.recv.relativePath = h.RelativePath
	s.recv.fileSize = h.FileSize
	s.recv.received = 0
	if h.TotalFiles > 0 {
		s.recv.totalFiles = h.TotalFiles
	} else {
		s.recv.totalFiles = 1
	}
	s.recv.fileIndex = h.CurrentFileIndex
	if s.recv.fileIndex == 0 {
		s.recv.fileIndex = 1
	}

	path, err := resolveDestination(s.downloadDir, h.RelativePath, h.FileName)
	if err != nil {
		s.fail(h.TransferID, "cannot resolve destination: "+err.Error())
		return
	}

	f, err := os.Create(path)
	if err != nil {
		s.fail(h.TransferID, "cannot create file: "+err.Error())
		return
	}
	s.recv.file = f
	s.state = Transferring

	s.emit(Event{
		Kind:       EventTransferStarted,
		TransferID: h.TransferID,
		FileName:   h.FileName,
		TotalSize:  h.FileSize,
		TotalFiles: int(s.recv.totalFiles),
		FileIndex:  int(s.recv.fileIndex),
	})
}

func (s *Session) handleFileData(data []byte) {
	if s.recv.file == nil {
		return
	}
	if _, err := s.recv.file.Write(data); err != nil {
		s.fail(s.recv.transferID, "write failed: "+err.Error())
		return
	}
	s.recv.received += int64(len(data))
	s.emit(Event{
		Kind:       EventTransferProgress,
		TransferID: s.recv.transferID,
		Sent:       s.recv.received,
		TotalSize:  s.recv.fileSize,
	})
}

func (s *Session) handleFileComplete(h wire.TransferHeader) {
	if s.recv.file == nil {
		return
	}
	path := s.recv.file.Name()
	_ = s.recv.file.Close()
	s.recv.file = nil

	s.emit(Event{Kind: EventFileReceived, TransferID: s.recv.transferID, Path: path, FileName: s.recv.fileName})

	if s.recv.fileIndex >= s.recv.totalFiles {
		s.emit(Event{Kind: EventTransferCompleted, TransferID: s.recv.transferID})
		s.state = Accepted
	}
}

// handleTransferCancel processes a transfer_cancel sent by the peer: the
// partially received file is deleted, unlike a connection drop, which
// leaves the partial file on disk (spec §9, §4.3).
func (s *Session) handleTransferCancel(h wire.TransferHeader) {
	if s.recv.file != nil {
		name := s.recv.file.Name()
		_ = s.recv.file.Close()
		_ = os.Remove(name)
		s.recv.file = nil
	}
	s.fail(h.TransferID, "transfer cancelled by peer")
	s.state = Idle
}
