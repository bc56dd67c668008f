package session

import "fmt"

// AdvancedParams is the mutable subset of session configuration that can be
// changed mid-session via [Controller.UpdateAdvanced], without a restart.
// Zero-valued fields in an update request leave the corresponding live
// value unchanged, matching update_advanced's partial-update contract.
// PersistEnabled and PersistRoot are recorded in the status snapshot only;
// the running persister keeps the settings it was started with.
type AdvancedParams struct {
	PersistEnabled *bool
	PersistRoot    *string

	AGCEnabled   *bool
	AGCTargetRMS *float64
	AGCMaxGain   *float64

	VADMinRMS               *float64
	VADMinSpeechSec         *float64
	VADMinSilenceSec        *float64
	VADHangoverSec          *float64
	VADForceFlushSec        *float64
	VADForceFlushOverlapSec *float64

	MaxGuestSpeakers *int
}

// ErrInvalidConfig is returned by [Controller.UpdateAdvanced] when a
// supplied value falls outside its documented range, per spec §6's
// INVALID_CONFIG contract.
var ErrInvalidConfig = fmt.Errorf("session: invalid advanced config")

// validate checks every present field against the same bounds
// internal/config.Validate enforces at load time, so a live update can
// never push a component outside its documented operating range.
func (p AdvancedParams) validate() error {
	if p.VADMinRMS != nil && (*p.VADMinRMS < 0.001 || *p.VADMinRMS > 0.2) {
		return fmt.Errorf("%w: vad_min_rms %.4f out of range [0.001, 0.2]", ErrInvalidConfig, *p.VADMinRMS)
	}
	if p.VADMinSpeechSec != nil && (*p.VADMinSpeechSec < 0.2 || *p.VADMinSpeechSec > 2.5) {
		return fmt.Errorf("%w: vad_min_speech_sec %.2f out of range [0.2, 2.5]", ErrInvalidConfig, *p.VADMinSpeechSec)
	}
	if p.VADMinSilenceSec != nil && (*p.VADMinSilenceSec < 0.2 || *p.VADMinSilenceSec > 2.5) {
		return fmt.Errorf("%w: vad_min_silence_sec %.2f out of range [0.2, 2.5]", ErrInvalidConfig, *p.VADMinSilenceSec)
	}
	if p.VADHangoverSec != nil && (*p.VADHangoverSec < 0.1 || *p.VADHangoverSec > 1.5) {
		return fmt.Errorf("%w: vad_hangover_sec %.3f out of range [0.1, 1.5]", ErrInvalidConfig, *p.VADHangoverSec)
	}
	if p.VADForceFlushSec != nil && (*p.VADForceFlushSec < 2.0 || *p.VADForceFlushSec > 15.0) {
		return fmt.Errorf("%w: vad_force_flush_sec %.2f out of range [2.0, 15.0]", ErrInvalidConfig, *p.VADForceFlushSec)
	}
	if p.VADForceFlushOverlapSec != nil && (*p.VADForceFlushOverlapSec < 0 || *p.VADForceFlushOverlapSec > 1.5) {
		return fmt.Errorf("%w: vad_force_flush_overlap_sec %.2f out of range [0, 1.5]", ErrInvalidConfig, *p.VADForceFlushOverlapSec)
	}
	if p.MaxGuestSpeakers != nil && (*p.MaxGuestSpeakers < 0 || *p.MaxGuestSpeakers > 3) {
		return fmt.Errorf("%w: max_guest_speakers %d out of range [0, 3]", ErrInvalidConfig, *p.MaxGuestSpeakers)
	}
	if p.AGCMaxGain != nil && *p.AGCMaxGain <= 0 {
		return fmt.Errorf("%w: agc_max_gain %.2f must be positive", ErrInvalidConfig, *p.AGCMaxGain)
	}
	if p.AGCTargetRMS != nil && *p.AGCTargetRMS <= 0 {
		return fmt.Errorf("%w: agc_target_rms %.4f must be positive", ErrInvalidConfig, *p.AGCTargetRMS)
	}
	return nil
}

// merge overlays non-nil fields from delta onto a copy of p, returning the
// result. Used both to build the snapshot reported by status() and to
// compute the values applied to the live components.
func (p AdvancedParams) merge(delta AdvancedParams) AdvancedParams {
	out := p
	if delta.PersistEnabled != nil {
		out.PersistEnabled = delta.PersistEnabled
	}
	if delta.PersistRoot != nil {
		out.PersistRoot = delta.PersistRoot
	}
	if delta.AGCEnabled != nil {
		out.AGCEnabled = delta.AGCEnabled
	}
	if delta.AGCTargetRMS != nil {
		out.AGCTargetRMS = delta.AGCTargetRMS
	}
	if delta.AGCMaxGain != nil {
		out.AGCMaxGain = delta.AGCMaxGain
	}
	if delta.VADMinRMS != nil {
		out.VADMinRMS = delta.VADMinRMS
	}
	if delta.VADMinSpeechSec != nil {
		out.VADMinSpeechSec = delta.VADMinSpeechSec
	}
	if delta.VADMinSilenceSec != nil {
		out.VADMinSilenceSec = delta.VADMinSilenceSec
	}
	if delta.VADHangoverSec != nil {
		out.VADHangoverSec = delta.VADHangoverSec
	}
	if delta.VADForceFlushSec != nil {
		out.VADForceFlushSec = delta.VADForceFlushSec
	}
	if delta.VADForceFlushOverlapSec != nil {
		out.VADForceFlushOverlapSec = delta.VADForceFlushOverlapSec
	}
	if delta.MaxGuestSpeakers != nil {
		out.MaxGuestSpeakers = delta.MaxGuestSpeakers
	}
	return out
}
