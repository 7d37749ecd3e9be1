package core

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/channel"
	"github.com/nandanugg/drone-relay/module/core/domain"
)

func testOptions(shape domain.RecordShape) Options {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Options{
		Shape:         shape,
		Order:         domain.OrderLonLat,
		QueueSize:     8,
		SinkQueueSize: 8,
		Box:           domain.TrentoBox,
		Logger:        log,
	}
}

func archiveStatus(t *testing.T, m *Module) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m.RegisterRoutes(r.Group(""))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/archive/drone1?start=1&end=2", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestBuild_PositionShapeMigratesArchive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS drone_records").WillReturnResult(sqlmock.NewResult(0, 0))

	opts := testOptions(domain.ShapePosition)
	m, err := Build(context.Background(), db, nil, channel.New(channel.Options{Logger: opts.Logger}), opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"device_id", "latitude", "longitude", "received_at"}))
	if code := archiveStatus(t, m); code == http.StatusNotFound {
		t.Errorf("archive route not registered")
	}
}

func TestBuild_TelemetryShapeSkipsArchive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	opts := testOptions(domain.ShapeTelemetry)
	m, err := Build(context.Background(), db, nil, channel.New(channel.Options{Logger: opts.Logger}), opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected archive access: %v", err)
	}
	if code := archiveStatus(t, m); code != http.StatusNotFound {
		t.Errorf("expected archive route to be absent, got %d", code)
	}
}

func TestWatchTopics(t *testing.T) {
	cases := []struct {
		shape domain.RecordShape
		want  string
	}{
		{domain.ShapePosition, domain.TopicPositions},
		{domain.ShapeTelemetry, domain.TopicSensor},
	}
	for _, tc := range cases {
		got := WatchTopics(tc.shape)
		if len(got) != 2 || got[0] != tc.want || got[1] != domain.TopicDestinationReached {
			t.Errorf("%s: unexpected topics %v", tc.shape, got)
		}
	}
}
