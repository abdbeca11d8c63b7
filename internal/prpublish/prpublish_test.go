package prpublish

import (
	"testing"

	"github.com/ci-migrate/cipilot/internal/config"
	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/stretchr/testify/assert"
)

func cfgWith(strictness config.StrictnessLevel) *config.Config {
	c := config.Default()
	c.Strictness = strictness
	return c
}

func TestDecideDryRunNeverOpens(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessDryRun), true, true, false, model.ErrorNone, false)
	assert.False(t, d.OpenPR)
}

func TestDecideStrictSkipsOnLintFailure(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessStrict), false, true, false, model.ErrorNone, false)
	assert.False(t, d.OpenPR)
}

func TestDecideStrictSkipsOnSemanticFailure(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessStrict), true, false, false, model.ErrorNone, false)
	assert.False(t, d.OpenPR)
}

func TestDecideStrictOpensWhenBothPass(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessStrict), true, true, false, model.ErrorNone, false)
	assert.True(t, d.OpenPR)
	assert.Equal(t, TagUnverified, d.Tag)
}

func TestDecideLintOnlyOpensWithCaveatOnSemanticFailure(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessLintOnly), true, false, false, model.ErrorNone, false)
	assert.True(t, d.OpenPR)
	assert.Contains(t, d.Note, "Semantic Verification")
}

func TestDecideLintOnlySkipsOnLintFailure(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessLintOnly), false, true, false, model.ErrorNone, false)
	assert.False(t, d.OpenPR)
}

func TestDecidePermissiveAlwaysOpens(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessPermissive), false, false, false, model.ErrorNone, false)
	assert.True(t, d.OpenPR)
	assert.NotEmpty(t, d.Note)
}

func TestDecideRuntimeSuccessIsVerified(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessStrict), true, true, true, model.ErrorNone, false)
	assert.True(t, d.OpenPR)
	assert.Equal(t, TagVerified, d.Tag)
}

func TestDecideRuntimeSecretIsVerifiedWithCaveatEvenUnderStrict(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessStrict), true, true, true, model.ErrorSecret, false)
	assert.True(t, d.OpenPR)
	assert.Equal(t, TagVerifiedWithSecretCaveat, d.Tag)
}

func TestDecideRuntimeExhaustedFixableUnderStrictSkips(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessStrict), true, true, true, model.ErrorFixable, true)
	assert.False(t, d.OpenPR)
}

func TestDecideRuntimeExhaustedFixableUnderPermissiveOpensWithCaveat(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessPermissive), true, true, true, model.ErrorFixable, true)
	assert.True(t, d.OpenPR)
	assert.Equal(t, TagUnverified, d.Tag)
	assert.Contains(t, d.Note, "Runtime Verification")
}

func TestDecideRuntimeTimeoutUnderLintOnlyOpensWithCaveat(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessLintOnly), true, true, true, model.ErrorTimeout, false)
	assert.True(t, d.OpenPR)
	assert.Equal(t, TagUnverified, d.Tag)
}

func TestDecideRuntimeFixableNotYetExhaustedDoesNotOpen(t *testing.T) {
	d := Decide(cfgWith(config.StrictnessPermissive), true, true, true, model.ErrorFixable, false)
	assert.False(t, d.OpenPR)
}
