package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/platform/apierr"
	"github.com/weitingchou/jagereye/internal/wire"
)

func TestValidateStart(t *testing.T) {
	ok := wire.ApiRequest{
		Command: wire.CmdStartAnalyzer,
		Params: wire.ApiParams{
			Type:      "tripwire",
			Source:    domain.Source{"url": "rtsp://cam"},
			Pipelines: []domain.Pipeline{{Name: "detect"}},
		},
	}
	assert.NoError(t, Validate(ok, "tripwire"))

	wrongType := ok
	wrongType.Params.Type = "other"
	assert.ErrorIs(t, Validate(wrongType, "tripwire"), ErrNotForUs)

	noSource := ok
	noSource.Params.Source = nil
	assert.ErrorIs(t, Validate(noSource, "tripwire"), apierr.ErrContractViolation)

	noPipelines := ok
	noPipelines.Params.Pipelines = nil
	assert.ErrorIs(t, Validate(noPipelines, "tripwire"), apierr.ErrContractViolation)
}

func TestValidateIDOnly(t *testing.T) {
	req := wire.ApiRequest{
		Command: wire.CmdStopAnalyzer,
		Params:  wire.ApiParams{Type: "tripwire", ID: "a1"},
	}
	assert.NoError(t, Validate(req, "tripwire"))

	missingID := req
	missingID.Params.ID = ""
	assert.ErrorIs(t, Validate(missingID, "tripwire"), apierr.ErrContractViolation)

	wrongType := req
	wrongType.Params.Type = "other"
	assert.ErrorIs(t, Validate(wrongType, "tripwire"), ErrNotForUs)
}

func TestValidateUnknownCommand(t *testing.T) {
	req := wire.ApiRequest{Command: "BOGUS"}
	assert.ErrorIs(t, Validate(req, "tripwire"), apierr.ErrContractViolation)
}

func TestReplyFor(t *testing.T) {
	assert.Equal(t, wire.ReplyNotAvailableMsg(), ReplyFor(apierr.ErrNotAvailable))
	assert.Equal(t, wire.ReplyNotFoundMsg(), ReplyFor(apierr.ErrNotFound))
	assert.Equal(t, wire.ReplyNoOpMsg(), ReplyFor(apierr.ErrNoOp))
}
