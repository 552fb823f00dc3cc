package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpload(t *testing.T) {
	kind, err := ValidateUpload("notes.md", []byte("# Heading\nSome notes"))
	require.NoError(t, err)
	assert.Equal(t, FileKindText, kind)

	kind, err = ValidateUpload("scan.JPG", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)
	assert.Equal(t, FileKindImage, kind)

	_, err = ValidateUpload("slides.pptx", []byte("data"))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, err = ValidateUpload("empty.txt", nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = ValidateUpload("broken.pdf", []byte("definitely not a pdf"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestValidateUploadRejectsLargeNonPDF(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxOtherUploadBytes+1)
	_, err := ValidateUpload("dump.txt", big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "chapter 3 notes", defaultTitle("chapter_3-notes.pdf"))
	assert.Equal(t, "archive.tar", defaultTitle("archive.tar.gz"))
	assert.Equal(t, ".env", defaultTitle(".env"))
	assert.Equal(t, "Untitled document", defaultTitle("__.txt"))
}

func TestFailStuckExtractionsSkipsRunningTasks(t *testing.T) {
	db := integrationDB(t)
	user := createTestUser(t, db)
	svc := NewDocumentService(db, DocumentServiceConfig{Workers: 1})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	newDoc := func(status model.ExtractionStatus, age time.Duration) model.Document {
		doc := model.Document{UserID: user.ID, Title: "Stuck", Filename: "stuck.pdf", ExtractionStatus: status}
		require.NoError(t, db.Omit("User").Create(&doc).Error)
		require.NoError(t, db.Model(&doc).UpdateColumn("updated_at", time.Now().Add(-age)).Error)
		return doc
	}

	queued := newDoc(model.ExtractionStatusPending, time.Hour)
	processing := newDoc(model.ExtractionStatusProcessing, time.Hour)
	fresh := newDoc(model.ExtractionStatusPending, time.Minute)
	running := newDoc(model.ExtractionStatusProcessing, time.Hour)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, svc.runner.Go(extractionTaskKey(running.ID), time.Minute, func(ctx context.Context) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	_, err := svc.FailStuckExtractions(context.Background(), 30*time.Minute)
	require.NoError(t, err)

	status := func(id uint) model.Document {
		var doc model.Document
		require.NoError(t, db.First(&doc, id).Error)
		return doc
	}
	assert.Equal(t, model.ExtractionStatusFailed, status(queued.ID).ExtractionStatus)
	assert.Equal(t, "extraction timed out", status(queued.ID).ExtractionError)
	assert.Equal(t, model.ExtractionStatusFailed, status(processing.ID).ExtractionStatus)
	assert.Equal(t, model.ExtractionStatusPending, status(fresh.ID).ExtractionStatus)
	assert.Equal(t, model.ExtractionStatusProcessing, status(running.ID).ExtractionStatus)
}
