// Package dispatch is the conversational front door. It owns case creation,
// attaches the location and hands complete cases to the pipeline.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"biosecure/internal/archive"
	"biosecure/internal/casefile"
	"biosecure/internal/common"
	"biosecure/internal/geocode"
)

// ImageSource yields the image reference for a new case.
type ImageSource interface {
	Resolve(ctx context.Context) (string, error)
}

// Runner runs the investigation over a session's case.
type Runner interface {
	Run(ctx context.Context, sess casefile.Session) (casefile.CaseFile, error)
}

// Reply is what the user sees. Failed replies carry the error text verbatim
// in Message.
type Reply struct {
	SessionID string             `json:"sessionId"`
	Message   string             `json:"message"`
	Case      *casefile.CaseFile `json:"caseFile,omitempty"`
	Failed    bool               `json:"failed"`
	ErrorKind string             `json:"errorKind,omitempty"`
}

type Dispatcher struct {
	sessions *casefile.Sessions
	images   ImageSource
	geocoder geocode.Geocoder
	runner   Runner
	archive  archive.Store
	log      *slog.Logger
}

type Deps struct {
	Sessions *casefile.Sessions
	Images   ImageSource
	Geocoder geocode.Geocoder
	Runner   Runner
	// Archive is optional.
	Archive archive.Store
	Log     *slog.Logger
}

func New(d Deps) *Dispatcher {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sessions: d.Sessions,
		images:   d.Images,
		geocoder: d.Geocoder,
		runner:   d.Runner,
		archive:  d.Archive,
		log:      log,
	}
}

const stageDispatch = "dispatch"

const (
	msgGreeting    = "Hello! I can analyze an insect sighting. Ask me to analyze an insect and tell me where it was found."
	msgAskLocation = "A case has been opened for the insect image. Where was the insect found?"
)

// Handle processes one user message. It never panics and never returns an
// error: failures become a Reply with Failed set.
func (d *Dispatcher) Handle(ctx context.Context, sessionID, message string) (reply Reply) {
	reply.SessionID = sessionID
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "dispatch.panic", "session_id", sessionID, "panic", r)
			reply = d.fail(sessionID, nil, fmt.Errorf("internal error: %v", r))
		}
	}()

	sess, err := d.sessions.Open(sessionID)
	if err != nil {
		return d.fail(sessionID, nil, err)
	}
	unlock := casefile.Lock(sess)
	defer unlock()

	message = strings.TrimSpace(message)
	cf, has := sess.Get()
	created := false

	// (a) open a case
	if wantsNewCase(message) || (wantsAnalysis(message) && (!has || cf.Status == casefile.StatusReported)) {
		uri, err := d.images.Resolve(ctx)
		if err != nil {
			return d.fail(sessionID, nil, external(err))
		}
		fresh, err := casefile.New(uri)
		if err != nil {
			return d.fail(sessionID, nil, err)
		}
		if has {
			err = casefile.Reset(sess, fresh)
		} else {
			err = sess.Commit(fresh)
		}
		if err != nil {
			return d.fail(sessionID, nil, err)
		}
		d.log.InfoContext(ctx, "dispatch.case.created", "session_id", sessionID, "case_id", fresh.CaseID, "image_uri", uri)
		cf, has, created = fresh, true, true
	}

	if !has {
		return Reply{SessionID: sessionID, Message: msgGreeting}
	}

	if cf.Status == casefile.StatusReported {
		return d.ok(sessionID, cf, fmt.Sprintf("The report for case %s is available at %s", cf.CaseID, cf.ReportURL))
	}

	// (b) attach the location
	if cf.Location == nil {
		place := locationPhrase(message)
		// A case waiting for its location takes the whole message as the place.
		if place == "" && !created && !wantsAnalysis(message) {
			place = cleanPlace(message)
		}
		if place == "" {
			return d.ok(sessionID, cf, msgAskLocation)
		}
		next, err := d.locate(ctx, sess, cf, place)
		if err != nil {
			return d.fail(sessionID, &cf, err)
		}
		cf = next
	}

	// (c) run the investigation
	out, err := d.runner.Run(ctx, sess)
	if err != nil {
		latest, _ := sess.Get()
		return d.fail(sessionID, &latest, err)
	}
	if d.archive != nil {
		if err := d.archive.Save(ctx, out); err != nil {
			d.log.WarnContext(ctx, "dispatch.archive.failed", "case_id", out.CaseID, "err", err)
		}
	}
	return d.ok(sessionID, out, fmt.Sprintf("Report generated and available at %s", out.ReportURL))
}

func (d *Dispatcher) locate(ctx context.Context, sess casefile.Session, cf casefile.CaseFile, place string) (casefile.CaseFile, error) {
	res, err := d.geocoder.Geocode(ctx, place)
	if err != nil {
		return cf, external(err)
	}
	loc, err := casefile.NewLocation(place, res.Lat, res.Lon)
	if err != nil {
		return cf, err
	}
	next := cf.WithLocation(loc)
	if err := sess.Commit(next); err != nil {
		return cf, err
	}
	d.log.InfoContext(ctx, "dispatch.case.located", "case_id", cf.CaseID, "place", place, "lat", loc.Lat, "lon", loc.Lon)
	return next, nil
}

// Investigate runs one case end to end outside any conversation: a fresh
// case for imageURI (or the default image when empty) located at place.
func (d *Dispatcher) Investigate(ctx context.Context, imageURI, place string) (casefile.CaseFile, error) {
	place = cleanPlace(place)
	if place == "" {
		return casefile.CaseFile{}, common.MissingInput("", "a location description is required")
	}
	if strings.TrimSpace(imageURI) == "" {
		uri, err := d.images.Resolve(ctx)
		if err != nil {
			return casefile.CaseFile{}, external(err)
		}
		imageURI = uri
	}
	cf, err := casefile.New(imageURI)
	if err != nil {
		return casefile.CaseFile{}, err
	}
	sess := casefile.Detached(cf.CaseID)
	if err := sess.Commit(cf); err != nil {
		return casefile.CaseFile{}, err
	}
	if _, err := d.locate(ctx, sess, cf, place); err != nil {
		return cf, err
	}
	out, err := d.runner.Run(ctx, sess)
	if err != nil {
		return out, err
	}
	if d.archive != nil {
		if err := d.archive.Save(ctx, out); err != nil {
			d.log.WarnContext(ctx, "dispatch.archive.failed", "case_id", out.CaseID, "err", err)
		}
	}
	return out, nil
}

// Case returns the case currently held by a session.
func (d *Dispatcher) Case(sessionID string) (casefile.CaseFile, bool) {
	sess, ok := d.sessions.Lookup(sessionID)
	if !ok {
		return casefile.CaseFile{}, false
	}
	return sess.Get()
}

// ArchivedCase looks a finished case up by id.
func (d *Dispatcher) ArchivedCase(ctx context.Context, caseID string) (casefile.CaseFile, error) {
	if d.archive == nil {
		return casefile.CaseFile{}, archive.ErrNotFound
	}
	return d.archive.Get(ctx, caseID)
}

// external classifies a collaborator failure. The cause's text is kept so the
// user still sees it.
func external(err error) error {
	if _, ok := common.KindOf(err); ok {
		return err
	}
	return common.ExternalService(stageDispatch, "", err)
}

func (d *Dispatcher) ok(sessionID string, cf casefile.CaseFile, msg string) Reply {
	return Reply{SessionID: sessionID, Message: msg, Case: &cf}
}

func (d *Dispatcher) fail(sessionID string, cf *casefile.CaseFile, err error) Reply {
	r := Reply{SessionID: sessionID, Message: err.Error(), Case: cf, Failed: true}
	if kind, ok := common.KindOf(err); ok {
		r.ErrorKind = string(kind)
	}
	d.log.Warn("dispatch.failed", "session_id", sessionID, "err", err)
	return r
}
