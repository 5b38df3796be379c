package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/nasa-jpl/akd2g/generichttp"
	"github.com/nasa-jpl/akd2g/util"
)

var (
	errClamped = errors.New("requested position violates software limits, aborted")
)

// LimitMiddleware imposes axis-specific software travel limits on moves.
// Axes without an entry in Limits are not limited.
type LimitMiddleware struct {
	// Limits contains the server imposed limits on the controller
	Limits map[string]util.Limiter

	// Mov is a reference to the mover, used to query axis positions
	Mov Mover
}

// Guard wraps the handler of a position route.  A move whose destination
// would violate the axis limit is answered with StatusBadRequest and never
// reaches next.
func (l *LimitMiddleware) Guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis, relative, err := axisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		limiter, ok := l.Limits[axis]
		if !ok {
			next(w, r)
			return
		}
		// the mover wants the body too; read it all here, then paste it back
		bodyContent, err := ioutil.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.Body = ioutil.NopCloser(bytes.NewReader(bodyContent))
		f := generichttp.FloatT{}
		err = json.Unmarshal(bodyContent, &f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dest := f.F64
		if relative {
			currPos, err := l.Mov.GetPos(axis)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			dest += currPos
		}
		if !limiter.Check(dest) {
			http.Error(w, errClamped.Error(), http.StatusBadRequest)
			return
		}
		next(w, r)
	}
}

// Inject guards the position route of h and adds a /axis/{axis}/limits route
func (l *LimitMiddleware) Inject(h generichttp.HTTPer) {
	rt := h.RT()
	if hndl, ok := rt[setPos]; ok {
		rt[setPos] = l.Guard(hndl)
	}
	rt[getLims] = l.HTTPLimits
}

// HTTPLimits replies with the limits of an axis, or null if it has none
func (l *LimitMiddleware) HTTPLimits(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	lim, ok := l.Limits[axis]
	if !ok {
		generichttp.ReplyJSON(w, nil)
		return
	}
	generichttp.ReplyJSON(w, lim)
}
