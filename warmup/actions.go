package warmup

import (
	"time"

	"github.com/anvita/facebook-warmup/timing"
)

// Engagement action kinds, weighted in config.Warmup.ActionWeights.
const (
	ActionScrollDown    = "scroll_down"
	ActionScrollUp      = "scroll_up"
	ActionPauseReading  = "pause_reading"
	ActionLikePost      = "like_post"
	ActionCommentPost   = "comment_post"
	ActionWatchVideo    = "watch_video"
	ActionFriendRequest = "friend_request"
)

// Generic positive comments picked at random when commenting.
var commentPool = []string{
	"Nice!",
	"Love this!",
	"Great post!",
	"So true!",
	"This is awesome",
	"Wow!",
	"Absolutely!",
	"This made my day",
	"So cool!",
	"Couldn't agree more",
	"Fantastic!",
	"Well said!",
}

// executeAction dispatches one engagement action by kind. Unknown kinds
// fall back to a scroll so the loop always makes progress.
func (e *Engine) executeAction(st *SessionState, kind string) ActionResult {
	var res ActionResult
	switch kind {
	case ActionScrollDown:
		res = e.doScrollDown(st)
	case ActionScrollUp:
		res = e.doScrollUp(st)
	case ActionPauseReading:
		res = e.doPauseReading(st)
	case ActionLikePost:
		res = e.doLike(st)
	case ActionCommentPost:
		res = e.doComment(st)
	case ActionWatchVideo:
		res = e.doWatchVideo(st)
	case ActionFriendRequest:
		res = e.doFriendRequest(st)
	default:
		res = e.doScrollDown(st)
	}

	e.log.ActionOutcome(res.Kind, res.Succeeded, res.SkipReason)
	return res
}

// doScrollDown scrolls the feed by a random amount, then pauses to "read".
func (e *Engine) doScrollDown(st *SessionState) ActionResult {
	sc := e.cfg.Warmup.Scroll
	pixels := sc.MinPixels + e.src.Intn(sc.MaxPixels-sc.MinPixels+1)

	if err := e.driver.Scroll(pixels); err != nil {
		return e.interactionSkip(ActionScrollDown, err)
	}

	st.ScrollCount++
	st.ScrolledPixels += pixels
	e.clock.Sleep(sc.PauseSeconds.Seconds(e.src))

	return ActionResult{Kind: ActionScrollDown, Succeeded: true}
}

// doScrollUp scrolls back up a shorter distance, mimicking re-reading.
func (e *Engine) doScrollUp(st *SessionState) ActionResult {
	sc := e.cfg.Warmup.Scroll
	pixels := sc.UpMinPixels + e.src.Intn(sc.UpMaxPixels-sc.UpMinPixels+1)

	if err := e.driver.Scroll(-pixels); err != nil {
		return e.interactionSkip(ActionScrollUp, err)
	}

	st.ScrollCount++
	st.ScrolledPixels -= pixels
	e.clock.Sleep(timing.SampleDelay(e.src, time.Second, 2*time.Second))

	return ActionResult{Kind: ActionScrollUp, Succeeded: true}
}

// doPauseReading waits without touching the page, simulating a user
// actually reading posts.
func (e *Engine) doPauseReading(st *SessionState) ActionResult {
	sc := e.cfg.Warmup.Scroll
	// Slightly longer than the scroll pause, for "reading".
	pause := timing.Range{Min: sc.PauseSeconds.Min, Max: sc.PauseSeconds.Max + 2}
	e.clock.Sleep(pause.Seconds(e.src))
	return ActionResult{Kind: ActionPauseReading, Succeeded: true}
}

// doLike likes one visible post. Guard, probability gate, discovery,
// random selection, best-effort metadata, then mandatory cooldown.
func (e *Engine) doLike(st *SessionState) ActionResult {
	now := e.clock.Now()
	if ok, reason := st.likeGuard.allow(now); !ok {
		return ActionResult{Kind: ActionLikePost, SkipReason: reason}
	}

	if !timing.ProbabilityGate(e.src, e.cfg.Warmup.Like.Probability) {
		return ActionResult{Kind: ActionLikePost, SkipReason: "skipped: probability gate"}
	}

	// Scroll a little first so fresh posts are in view.
	if err := e.driver.Scroll(e.cfg.Warmup.Scroll.MinPixels); err == nil {
		st.ScrollCount++
		st.ScrolledPixels += e.cfg.Warmup.Scroll.MinPixels
	}

	target, res := e.discover(ActionLikePost, "like")
	if res != nil {
		return *res
	}

	if err := e.driver.Click(target); err != nil {
		return e.interactionSkip(ActionLikePost, err)
	}

	// Metadata capture is best-effort and never fails the action.
	author, _ := e.driver.Describe(target)

	now = e.clock.Now()
	st.Likes++
	st.likeGuard.record(now)
	st.LikedPosts = append(st.LikedPosts, LikedPost{Author: author, Timestamp: now})

	e.clock.Sleep(e.cfg.Warmup.Like.IntervalSeconds.Seconds(e.src))
	return ActionResult{Kind: ActionLikePost, Succeeded: true, Detail: author}
}

// doComment opens a comment box on a visible post and types a short
// generic comment.
func (e *Engine) doComment(st *SessionState) ActionResult {
	now := e.clock.Now()
	if ok, reason := st.commentGuard.allow(now); !ok {
		return ActionResult{Kind: ActionCommentPost, SkipReason: reason}
	}

	if !timing.ProbabilityGate(e.src, e.cfg.Warmup.Comment.Probability) {
		return ActionResult{Kind: ActionCommentPost, SkipReason: "skipped: probability gate"}
	}

	// Open the comment area first; some layouts show the box only after.
	if button, res := e.discover(ActionCommentPost, "comment"); res == nil {
		if err := e.driver.Click(button); err != nil {
			return e.interactionSkip(ActionCommentPost, err)
		}
		e.clock.Sleep(timing.SampleDelay(e.src, time.Second, 2*time.Second))
	}

	box, res := e.discover(ActionCommentPost, "comment_box")
	if res != nil {
		return *res
	}

	text := commentPool[e.src.Intn(len(commentPool))]
	if err := e.driver.Click(box); err != nil {
		return e.interactionSkip(ActionCommentPost, err)
	}
	if err := e.driver.TypeText(box, text); err != nil {
		return e.interactionSkip(ActionCommentPost, err)
	}
	if err := e.driver.PressEnter(); err != nil {
		return e.interactionSkip(ActionCommentPost, err)
	}

	now = e.clock.Now()
	st.Comments++
	st.commentGuard.record(now)

	e.clock.Sleep(e.cfg.Warmup.Comment.IntervalSeconds.Seconds(e.src))
	return ActionResult{Kind: ActionCommentPost, Succeeded: true, Detail: text}
}

// doWatchVideo finds a visible video and watches it for a sampled
// duration. Clicking play is best-effort since many videos autoplay.
func (e *Engine) doWatchVideo(st *SessionState) ActionResult {
	now := e.clock.Now()
	if ok, reason := st.videoGuard.allow(now); !ok {
		return ActionResult{Kind: ActionWatchVideo, SkipReason: reason}
	}

	if !timing.ProbabilityGate(e.src, e.cfg.Warmup.Video.WatchProbability) {
		return ActionResult{Kind: ActionWatchVideo, SkipReason: "skipped: probability gate"}
	}

	video, res := e.discover(ActionWatchVideo, "video")
	if res != nil {
		return *res
	}

	if play, playRes := e.discover(ActionWatchVideo, "video_play"); playRes == nil {
		e.driver.Click(play)
	} else {
		e.driver.Click(video)
	}

	watch := e.cfg.Warmup.Video.WatchSeconds.Seconds(e.src)
	e.clock.Sleep(watch)

	st.VideosWatched++
	st.videoGuard.record(e.clock.Now())
	return ActionResult{Kind: ActionWatchVideo, Succeeded: true}
}

// doFriendRequest sends one friend request from the suggestions view.
// This is the highest-risk action, so it carries the longest cooldown.
func (e *Engine) doFriendRequest(st *SessionState) ActionResult {
	now := e.clock.Now()
	if ok, reason := st.friendGuard.allow(now); !ok {
		return ActionResult{Kind: ActionFriendRequest, SkipReason: reason}
	}

	target, res := e.discover(ActionFriendRequest, "friend_request")
	if res != nil {
		return *res
	}

	if err := e.driver.Click(target); err != nil {
		return e.interactionSkip(ActionFriendRequest, err)
	}

	name, _ := e.driver.Describe(target)

	now = e.clock.Now()
	st.FriendRequests++
	st.friendGuard.record(now)
	st.FriendsRequested = append(st.FriendsRequested, FriendRequested{Name: name, Timestamp: now})

	e.clock.Sleep(e.cfg.Warmup.FriendRequest.IntervalSeconds.Seconds(e.src))
	return ActionResult{Kind: ActionFriendRequest, Succeeded: true, Detail: name}
}

// discover asks the driver for actionable targets of a selector kind and
// picks one at random from the capped candidate list. The second return
// is non-nil when the action should be skipped instead.
func (e *Engine) discover(actionKind, selectorKind string) (Target, *ActionResult) {
	filter := TargetFilter{
		ExcludedText: e.cfg.Selectors.ExcludedText,
		MinY:         e.cfg.Selectors.MinTargetY,
		Limit:        5,
	}

	targets, err := e.driver.FindActionable(selectorKind, filter)
	if err != nil {
		res := e.interactionSkip(actionKind, err)
		return Target{}, &res
	}
	if len(targets) == 0 {
		return Target{}, &ActionResult{Kind: actionKind, SkipReason: "skipped: none found"}
	}

	return targets[e.src.Intn(len(targets))], nil
}

// interactionSkip converts a collaborator failure into a non-fatal skip.
func (e *Engine) interactionSkip(kind string, err error) ActionResult {
	e.log.WithError(err).Debugf("%s failed, continuing", kind)
	return ActionResult{Kind: kind, SkipReason: "interaction error: " + err.Error()}
}
