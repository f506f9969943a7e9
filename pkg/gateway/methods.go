package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/fieldrec/pkg/catalog"
	"github.com/harun/fieldrec/pkg/concat"
	"github.com/harun/fieldrec/pkg/recording"
)

// RPC method names. The recording methods keep the names mobile clients
// already call.
const (
	MethodStartRecording    = "startRecording"
	MethodPauseRecording    = "pauseRecording"
	MethodResumeRecording   = "resumeRecording"
	MethodStopRecording     = "stopRecording"
	MethodGetRecordDuration = "getRecordDuration"
	MethodRecordingState    = "recording.state"
	MethodConcatAudio       = "concatAudioAcc"
	MethodPermissionGrant   = "permission.grant"
	MethodPermissionDeny    = "permission.deny"
	MethodPermissionStatus  = "permission.status"
	MethodCatalogList       = "catalog.list"
)

// registerBuiltinMethods registers the methods backed by configured components
func (s *Server) registerBuiltinMethods() {
	if s.session != nil {
		_ = s.RegisterMethod(MethodStartRecording, s.handleStartRecording)
		_ = s.RegisterMethod(MethodPauseRecording, s.handlePauseRecording)
		_ = s.RegisterMethod(MethodResumeRecording, s.handleResumeRecording)
		_ = s.RegisterMethod(MethodStopRecording, s.handleStopRecording)
		_ = s.RegisterMethod(MethodGetRecordDuration, s.handleGetRecordDuration)
		_ = s.RegisterMethod(MethodRecordingState, s.handleRecordingState)
	}

	if s.pipeline != nil {
		_ = s.RegisterMethod(MethodConcatAudio, s.handleConcatAudio)
	}

	if s.permissions != nil {
		_ = s.RegisterMethod(MethodPermissionGrant, s.handlePermissionGrant)
		_ = s.RegisterMethod(MethodPermissionDeny, s.handlePermissionDeny)
		_ = s.RegisterMethod(MethodPermissionStatus, s.handlePermissionStatus)
	}

	if s.catalog != nil {
		_ = s.RegisterMethod(MethodCatalogList, s.handleCatalogList)
	}
}

// recordingError maps a session error to its wire code
func recordingError(err error) *RPCError {
	rpcErr := &RPCError{Code: ApplicationError, Message: recording.Code(err)}
	if errors.Is(err, context.DeadlineExceeded) {
		rpcErr.Code = RequestTimeout
	}
	return rpcErr
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: InvalidParams, Message: fmt.Sprintf(format, args...)}
}

func (s *Server) handleStartRecording(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	path, _ := params["path"].(string)
	cancelLast, _ := params["cancelLast"].(bool)

	ctx, cancel := context.WithTimeout(ctx, s.startTimeout)
	defer cancel()

	if err := s.session.StartWait(ctx, recording.StartOptions{Path: path, CancelLast: cancelLast}); err != nil {
		logger := requestLogger(ctx, s.logger, MethodStartRecording)
		logger.Warn().Err(err).Str("path", path).Msg("Start failed")
		return nil, recordingError(err)
	}
	return struct{}{}, nil
}

func (s *Server) handlePauseRecording(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := s.session.Pause(); err != nil {
		return nil, recordingError(err)
	}
	return struct{}{}, nil
}

func (s *Server) handleResumeRecording(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := s.session.Resume(); err != nil {
		return nil, recordingError(err)
	}
	return struct{}{}, nil
}

// stopResult is the stopRecording result
type stopResult struct {
	recording.StopResult
	CatalogID string `json:"catalogId,omitempty"`
}

func (s *Server) handleStopRecording(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	res, err := s.session.Stop()
	if err != nil {
		return nil, recordingError(err)
	}

	out := stopResult{StopResult: res}
	if s.catalog != nil {
		entry, err := s.catalog.AddTake(ctx, res.Path, res.Duration)
		if err != nil {
			logger := requestLogger(ctx, s.logger, MethodStopRecording)
			logger.Warn().Err(err).Msg("Failed to catalog recording")
		} else {
			out.CatalogID = entry.ID
		}
	}
	return out, nil
}

func (s *Server) handleGetRecordDuration(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	d, err := s.session.Duration()
	if err != nil {
		return nil, recordingError(err)
	}
	return recording.DurationEvent{Duration: d}, nil
}

func (s *Server) handleRecordingState(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	state := s.session.State()
	out := map[string]interface{}{
		"state": state.String(),
	}
	if state != recording.StateIdle {
		out["path"] = s.session.Path()
		if d, err := s.session.Duration(); err == nil {
			out["duration"] = d
		}
	}
	return out, nil
}

// concatResult is the concatAudioAcc result
type concatResult struct {
	Path      string `json:"path"`
	CatalogID string `json:"catalogId,omitempty"`
}

func (s *Server) handleConcatAudio(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, &RPCError{Code: ApplicationError, Message: concat.ErrInvalidOptions.Error()}
	}

	req, err := concat.ParseRequest(raw)
	if err != nil {
		return nil, concatError(err)
	}

	// The pipeline has no caller deadline; it runs until the transcoder
	// finishes or the server shuts down.
	if err := s.pipeline.Concatenate(s.baseCtx, req.Segments, req.Path); err != nil {
		logger := requestLogger(ctx, s.logger, MethodConcatAudio)
		logger.Warn().Err(err).Msg("Concatenation failed")
		return nil, concatError(err)
	}

	out := concatResult{Path: recording.StripFileScheme(req.Path)}
	if s.catalog != nil {
		entry, err := s.catalog.AddAssembled(ctx, out.Path, len(req.Segments))
		if err != nil {
			logger := requestLogger(ctx, s.logger, MethodConcatAudio)
			logger.Warn().Err(err).Msg("Failed to catalog assembled file")
		} else {
			out.CatalogID = entry.ID
		}
	}
	return out, nil
}

func concatError(err error) *RPCError {
	rpcErr := &RPCError{Code: ApplicationError, Message: concat.Reason(err)}
	var pe *concat.Error
	if errors.As(err, &pe) && pe.Index >= 0 {
		rpcErr.Data = map[string]interface{}{"index": pe.Index}
	}
	return rpcErr
}

func capabilityParam(params map[string]interface{}) recording.Capability {
	if c, ok := params["capability"].(string); ok && c != "" {
		return recording.Capability(c)
	}
	return recording.CapabilityRecording
}

func (s *Server) handlePermissionGrant(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	c := capabilityParam(params)
	if err := s.permissions.Grant(c); err != nil {
		logger := requestLogger(ctx, s.logger, MethodPermissionGrant)
		logger.Error().Err(err).Msg("Failed to persist grant")
		return nil, err
	}
	return map[string]interface{}{"capability": c, "granted": true}, nil
}

func (s *Server) handlePermissionDeny(_ context.Context, params map[string]interface{}) (interface{}, error) {
	c := capabilityParam(params)
	s.permissions.Deny(c)
	return map[string]interface{}{"capability": c, "granted": s.permissions.IsGranted(c)}, nil
}

func (s *Server) handlePermissionStatus(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"grants":  s.permissions.Status(),
		"pending": s.permissions.Pending(recording.CapabilityRecording),
	}, nil
}

func (s *Server) handleCatalogList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var f catalog.Filter

	if kind, ok := params["kind"].(string); ok && kind != "" {
		switch catalog.Kind(kind) {
		case catalog.KindTake, catalog.KindAssembled:
			f.Kind = catalog.Kind(kind)
		default:
			return nil, invalidParams("unknown kind: %s", kind)
		}
	}
	if limit, ok := params["limit"].(float64); ok {
		if limit < 0 {
			return nil, invalidParams("limit must be >= 0")
		}
		f.Limit = int(limit)
	}

	entries, err := s.catalog.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"entries": entries}, nil
}
