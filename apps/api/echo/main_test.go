package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/0xDevansh/aries-week/core"
	"github.com/0xDevansh/aries-week/core/course"
	"github.com/0xDevansh/aries-week/core/progress"
	"github.com/0xDevansh/aries-week/core/user"
	appfs "github.com/0xDevansh/aries-week/fs"
	notifysvc "github.com/0xDevansh/aries-week/services/notify"
	inmemdb "github.com/0xDevansh/aries-week/storage/database/inmem"
	"github.com/0xDevansh/aries-week/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp is a Server backed by the in-memory repositories.
type testApp struct {
	*Server
	usrRepo    user.Repository
	courseRepo course.Repository
	progRepo   progress.Repository
	broker     *notifysvc.Broker
	mailbox    *testutil.Mailbox
	logger     *testutil.Logger
}

func setup(t *testing.T) testApp {
	t.Helper()
	conf := core.NewTestConfig()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	progress.InitValidators(validate, translator)

	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, conf, logger)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	progRepo := inmemdb.NewProgressRepository(db)

	// set up services
	mailbox := new(testutil.Mailbox)
	broker := notifysvc.NewBroker()
	usrSvc := user.NewService(nil, usrRepo, mailbox, conf)
	courseSvc := course.NewService(nil, courseRepo, broker)
	progSvc := progress.NewService(nil, progRepo, courseSvc, usrSvc, mailbox, broker)

	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		CourseSvc:      courseSvc,
		ProgressSvc:    progSvc,
		Broker:         broker,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return testApp{
		Server:     srv,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		progRepo:   progRepo,
		broker:     broker,
		mailbox:    mailbox,
		logger:     logger,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (app testApp) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, app testApp, usr user.User) string {
	t.Helper()
	token, err := app.auth.generateToken(app.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	return marshalObj(t, objs)
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	assert.True(t, ok, "failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}
