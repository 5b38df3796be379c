// Package ascii contains injectable HTTP interfaces to ASCII hardware
package ascii

import (
	"encoding/json"
	"net/http"

	"github.com/nasa-jpl/akd2g/generichttp"
)

// RawCommunicator has a single Raw method
type RawCommunicator interface {
	Raw(string) (string, error)
}

// InjectRawComm injects a /raw POST route into the route table.  The body is
// {"str": "AXIS1.PL.FB"} and the reply is the drive's answer, {"str": ...}
func InjectRawComm(table generichttp.RouteTable, raw RawCommunicator) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = HTTPRaw(raw)
}

// HTTPRaw returns a handler that passes the body through raw
func HTTPRaw(raw RawCommunicator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		str := generichttp.StrT{}
		err := json.NewDecoder(r.Body).Decode(&str)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if str.Str == "" {
			http.Error(w, "empty command", http.StatusBadRequest)
			return
		}
		generichttp.GetString(func() (string, error) {
			return raw.Raw(str.Str)
		})(w, r)
	}
}
