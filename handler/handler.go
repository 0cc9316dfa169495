package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Financial-Times/go-logger/v2"
	tid "github.com/Financial-Times/transactionid-utils-go"
	"github.com/cytomine/cytomine-go-client/cytomine"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

type Handler struct {
	logger  *logger.UPPLogger
	client  *cytomine.Client
	timeout time.Duration
}

func NewHandler(l *logger.UPPLogger, c *cytomine.Client, timeout time.Duration) *Handler {
	return &Handler{
		logger:  l,
		client:  c,
		timeout: timeout,
	}
}

type page struct {
	Collection interface{} `json:"collection"`
	Size       int         `json:"size"`
	Offset     int         `json:"offset"`
	Max        int         `json:"max"`
}

type reviewBody struct {
	Terms []int64 `json:"terms"`
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc, string) {
	txid := tid.GetTransactionIDFromRequest(r)
	ctx, cancel := context.WithTimeout(tid.TransactionAwareContext(r.Context(), txid), h.timeout)
	return ctx, cancel, txid
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, txid := h.requestContext(r)
	defer cancel()

	max, offset, err := pagination(r)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	col := cytomine.NewProjectCollection()
	col.Max, col.Offset = max, offset
	if err := col.Fetch(ctx, h.client); err != nil {
		h.writeError(w, txid, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Collection: nonNil(col.Items), Size: col.Size, Offset: offset, Max: max})
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, txid := h.requestContext(r)
	defer cancel()

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, err := cytomine.Fetch[cytomine.Project](ctx, h.client, id)
	if err != nil {
		h.writeError(w, txid, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListProjectImages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, txid := h.requestContext(r)
	defer cancel()

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	max, offset, err := pagination(r)
	if err != nil {
		writeMsg(w, http.StatusBadRequest, err.Error())
		return
	}

	col := cytomine.NewImageInstanceCollection()
	col.Max, col.Offset = max, offset
	if err := col.FetchWithFilter(ctx, h.client, "project", id); err != nil {
		h.writeError(w, txid, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Collection: nonNil(col.Items), Size: col.Size, Offset: offset, Max: max})
}

func (h *Handler) ListImageAnnotations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, txid := h.requestContext(r)
	defer cancel()

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	show := true
	col := cytomine.NewAnnotationCollection()
	col.Query.Image = id
	col.Query.ShowWKT = &show
	col.Query.ShowTerm = &show

	for key, dst := range map[string]*int64{"term": &col.Query.Term, "user": &col.Query.User} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeMsg(w, http.StatusBadRequest, "Please specify a valid "+key+" id")
			return
		}
		*dst = n
	}

	if err := col.Fetch(ctx, h.client); err != nil {
		h.writeError(w, txid, err)
		return
	}
	writeJSON(w, http.StatusOK, page{Collection: nonNil(col.Items), Size: col.Size})
}

func (h *Handler) ReviewAnnotation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, txid := h.requestContext(r)
	defer cancel()

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.logger.WithFields(log.Fields{"transaction_id": txid, "annotation": id}).Info("review")

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WithTransactionID(txid).WithField("reason", err).Warn("error reading body")
		writeMsg(w, http.StatusBadRequest, "Failed to read request body. Please provide a valid json request body")
		return
	}

	var body reviewBody
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			h.logger.WithTransactionID(txid).WithField("reason", err).Warn("failed to unmarshal review body")
			writeMsg(w, http.StatusBadRequest, "Failed to process request json. Please provide a valid json request body")
			return
		}
	}

	a := &cytomine.Annotation{}
	a.ID = id
	out, err := a.Review(ctx, h.client, body.Terms)
	if err != nil {
		h.writeError(w, txid, err)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, txid := h.requestContext(r)
	defer cancel()

	u := &cytomine.CurrentUser{}
	if err := h.client.FetchModel(ctx, u, nil); err != nil {
		h.writeError(w, txid, err)
		return
	}
	u.PrivateKey = ""
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) writeError(w http.ResponseWriter, txid string, err error) {
	switch {
	case errors.Is(err, cytomine.ErrServiceTimeout):
		writeMsg(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, cytomine.ErrNotFound):
		writeMsg(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cytomine.ErrNoID):
		writeMsg(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithTransactionID(txid).WithError(err).Error("request to cytomine failed")
		writeMsg(w, http.StatusServiceUnavailable, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeMsg(w, http.StatusBadRequest, "Please specify a valid id in the request")
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (int, int, error) {
	max, offset := defaultPageSize, 0
	q := r.URL.Query()

	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageSize {
			return 0, 0, errors.New("max must be between 1 and " + strconv.Itoa(maxPageSize))
		}
		max = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset must be a positive number")
		}
		offset = n
	}
	return max, offset, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := make(map[string]interface{})
	resp["message"] = capitalise(msg)

	enc := json.NewEncoder(w)
	_ = enc.Encode(&resp)
}

func capitalise(msg string) string {
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
