// Package motion provides an HTTP interface to motion controllers
package motion

/*
A motion controller may implement any number of the capability interfaces in
this package.  NewHTTPMotionController checks which ones the concrete type
satisfies and binds their routes; routes for capabilities it lacks simply do
not exist.
*/
import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/nasa-jpl/akd2g/generichttp"
)

// Controller is used for the HTTP interface, which will check if the concrete
// type satisfies the other interfaces in this package and inject their routes
// automatically
type Controller interface {
	// Mover - all Controllers must be Movers
	Mover
}

// AxisLister is a Controller that knows its axis labels.  Requests for other
// labels are answered with 404 before reaching the controller.
type AxisLister interface {
	AxisLabels() []string
}

// HTTPMotionController wraps a motion controller with HTTP
type HTTPMotionController struct {
	Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPMotionController returns a new HTTP wrapper with the route table pre-configured
func NewHTTPMotionController(c Controller) HTTPMotionController {
	w := HTTPMotionController{Controller: c}
	rt := generichttp.RouteTable{}
	HTTPMove(c, rt)
	if enabler, ok := c.(Enabler); ok {
		HTTPEnable(enabler, rt)
	}
	if speeder, ok := c.(Speeder); ok {
		HTTPSpeed(speeder, rt)
	}
	if stopper, ok := c.(Stopper); ok {
		HTTPStop(stopper, rt)
	}
	if inpos, ok := c.(InPositionQueryer); ok {
		HTTPInPosition(inpos, rt)
	}
	if initializer, ok := c.(Initializer); ok {
		HTTPInitialize(initializer, rt)
	}
	if reporter, ok := c.(StatusReporter); ok {
		HTTPStatus(reporter, rt)
	}
	if lister, ok := c.(AxisLister); ok {
		for k, v := range rt {
			rt[k] = checkAxis(lister, v)
		}
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the HTTPer interface
func (h HTTPMotionController) RT() generichttp.RouteTable {
	return h.RouteTable
}

func checkAxis(l AxisLister, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		for _, label := range l.AxisLabels() {
			if label == axis {
				next(w, r)
				return
			}
		}
		http.Error(w, "no axis "+axis, http.StatusNotFound)
	}
}
