package service

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/model"
)

func setupTransferService(t *testing.T) *TransferService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ImageTask{}))
	database.DB = db

	cfg := &config.Config{
		Storage: config.StorageConfig{
			UploadDir:      t.TempDir(),
			PublicBaseURL:  "http://admin.local/uploads",
			ThumbnailWidth: 100,
		},
	}
	log := logger.New(config.LogConfig{Level: "error", Output: "stdout"})
	return NewTransferService(cfg, log)
}

func testJPEG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestTransferTaskRewritesResultRef(t *testing.T) {
	s := setupTransferService(t)

	payload := testJPEG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer server.Close()

	task := model.ImageTask{
		ProductID: 3,
		SourceRef: "https://cdn/src.jpg",
		ResultRef: server.URL + "/result.jpg",
		Status:    model.TaskStatusCompleted,
	}
	require.NoError(t, database.DB.Create(&task).Error)

	require.NoError(t, s.TransferTask(context.Background(), task.ID))

	var reloaded model.ImageTask
	require.NoError(t, database.DB.First(&reloaded, task.ID).Error)
	assert.True(t, strings.HasPrefix(reloaded.ResultRef, "http://admin.local/uploads/results/"))

	// 落盘的主图和缩略图都存在
	name := filepath.Base(reloaded.ResultRef)
	_, err := os.Stat(filepath.Join(s.cfg.Storage.UploadDir, "results", name))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.cfg.Storage.UploadDir, "results", "thumbs", name))
	require.NoError(t, err)
}

func TestTransferTaskSkipsLocalResult(t *testing.T) {
	s := setupTransferService(t)

	task := model.ImageTask{
		ProductID: 3,
		SourceRef: "https://cdn/src.jpg",
		ResultRef: "http://admin.local/uploads/results/done.jpg",
		Status:    model.TaskStatusCompleted,
	}
	require.NoError(t, database.DB.Create(&task).Error)

	require.NoError(t, s.TransferTask(context.Background(), task.ID))

	var reloaded model.ImageTask
	require.NoError(t, database.DB.First(&reloaded, task.ID).Error)
	assert.Equal(t, task.ResultRef, reloaded.ResultRef)
}

func TestTransferTaskRejectsIncomplete(t *testing.T) {
	s := setupTransferService(t)

	task := model.ImageTask{ProductID: 3, SourceRef: "https://cdn/src.jpg", Status: model.TaskStatusPending}
	require.NoError(t, database.DB.Create(&task).Error)

	require.Error(t, s.TransferTask(context.Background(), task.ID))
}
