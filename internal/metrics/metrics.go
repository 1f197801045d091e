// Package metrics centralizes the expvar counters and gauges published by
// the pipeline, in the teacher's style (constants.go's evFramesRead,
// evKeyframeRequests, ...): plain expvar.Int values, no metrics framework.
package metrics

import "expvar"

var (
	FrameMetaStamped    = expvar.NewInt("frame_meta_stamped")
	FrameMetaOversize   = expvar.NewInt("frame_meta_oversize")
	FrameMetaMapErr     = expvar.NewInt("frame_meta_map_error")
	UpMessagesSent      = expvar.NewInt("up_messages_sent")
	UpMessagesDropped   = expvar.NewInt("up_messages_dropped")
	SamplesProduced     = expvar.NewInt("samples_produced")
	SamplesDropped      = expvar.NewInt("samples_dropped")
	RenderNewSample     = expvar.NewInt("render_new_sample")
	RenderReusedSample  = expvar.NewInt("render_reused_sample")
	RenderNoSample      = expvar.NewInt("render_no_sample")
	RenderShouldNotDraw = expvar.NewInt("render_should_not_render")
	RenderErrors        = expvar.NewInt("render_errors")
	ActivePeers         = expvar.NewInt("active_peers")
	KeyframeRequests    = expvar.NewInt("keyframe_requests")
)
