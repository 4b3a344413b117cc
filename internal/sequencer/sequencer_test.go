package sequencer

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/sequencer/internal/activity"
	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/internal/registry"
	"github.com/rendis/sequencer/pkg/schema"
)

var workflowIDs = []string{"load", "register", "review"}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.RegisterDocument(&schema.ActivityDocument{Activities: []schema.ActivityInfo{
		{
			ID:          "load",
			Description: "Load the fixed image",
			Requirements: []schema.RequirementDescriptor{
				{Name: "image", Type: data.TypeImage, MinOccurs: 1, MaxOccurs: 1},
				{Name: "tags", Type: data.TypeString, MinOccurs: 0, MaxOccurs: 1},
			},
		},
		{
			ID: "register",
			Requirements: []schema.RequirementDescriptor{
				{Name: "image", Type: data.TypeImage, MinOccurs: 1, MaxOccurs: 1},
				{Name: "transform", Type: data.TypeString, MinOccurs: 1, MaxOccurs: 1, Create: true,
					ObjectConfig: map[string]any{"value": "identity"}},
				{Name: "landmarks", Type: data.TypeVector, MinOccurs: 0, MaxOccurs: 0},
			},
		},
		{
			ID: "review",
			Requirements: []schema.RequirementDescriptor{
				{Name: "transform", Type: data.TypeString, MinOccurs: 1, MaxOccurs: 1, Create: true},
				{Name: "landmarks", Type: data.TypeVector, MinOccurs: 0, MaxOccurs: 0},
				{Name: "report", Type: data.TypeString, MinOccurs: 0, MaxOccurs: 1},
			},
		},
	}}))
	return r
}

func newSequencer(t *testing.T, opts ...Option) *Sequencer {
	t.Helper()
	return New(workflowIDs, newRegistry(t), data.DefaultFactory(), opts...)
}

func testImage() *data.Image {
	return data.NewImage([]int{64, 64, 32}, []float64{1, 1, 2}, []float64{0, 0, 0})
}

// buildAll creates every activity, supplying the mandatory image on the way.
func buildAll(t *testing.T, seq *Sequencer, set *activity.Set) {
	t.Helper()
	act, err := seq.GetActivity(set, 0, nil)
	require.NoError(t, err)
	act.Set("image", testImage())
	require.NoError(t, seq.StoreActivityData(set, 0))

	_, err = seq.GetActivity(set, len(workflowIDs)-1, nil)
	require.NoError(t, err)
}

func TestIDCounter(t *testing.T) {
	c := NewIDCounter(0)
	assert.Equal(t, "activity_0_image", c.Mint("image"))
	assert.Equal(t, "activity_0_image", c.Mint("image"), "minting does not advance")
	assert.Equal(t, uint64(1), c.Advance())
	assert.Equal(t, "activity_1_image", c.Mint("image"))
	assert.Equal(t, uint64(7), NewIDCounter(7).Current())
}

func TestRequirementStore(t *testing.T) {
	s := NewRequirementStore()
	a, b := data.NewString("a"), data.NewString("b")
	s.Bind("x", a)
	s.Bind("y", b)
	s.Bind("x", b)

	got, ok := s.Lookup("x")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, []string{"x", "y"}, s.Names())

	snap := s.Snapshot()
	s.Clear()
	assert.Zero(t, s.Len())
	assert.Len(t, snap, 2)
}

func TestGetActivity_CreatesRequirements(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()

	act, err := seq.GetActivity(set, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "load", act.ConfigID())
	assert.Equal(t, "Load the fixed image", act.Description())

	// Mandatory, not creatable: left unbound.
	_, bound := act.Get("image")
	assert.False(t, bound)

	// Optional: empty Composite placeholder with a minted id.
	tags, ok := act.Get("tags")
	require.True(t, ok)
	assert.Equal(t, data.TypeComposite, tags.Type())
	assert.Equal(t, "activity_0_tags", tags.ID())

	stored, ok := seq.Store().Lookup("tags")
	require.True(t, ok)
	assert.Same(t, tags, stored)
}

func TestGetActivity_IdentityStableAcrossSteps(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)
	require.Equal(t, 3, set.Len())

	img0, _ := set.At(0).Get("image")
	img1, _ := set.At(1).Get("image")
	assert.Same(t, img0, img1)

	tr1, _ := set.At(1).Get("transform")
	tr2, _ := set.At(2).Get("transform")
	assert.Same(t, tr1, tr2)
	assert.Equal(t, "activity_0_transform", tr1.ID())
	assert.Equal(t, "identity", tr1.(*data.String).Value())

	lm, _ := set.At(1).Get("landmarks")
	assert.Equal(t, data.TypeVector, lm.Type())
	assert.Equal(t, "activity_0_landmarks", lm.ID())

	// Going back to an existing step returns the same record.
	again, err := seq.GetActivity(set, 1, nil)
	require.NoError(t, err)
	assert.Same(t, set.At(1), again)
	assert.Equal(t, 3, set.Len())
}

func TestGetActivity_RefreshesFromStore(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	replacement := testImage()
	set.At(1).Set("image", replacement)
	require.NoError(t, seq.StoreActivityData(set, 1))

	act, err := seq.GetActivity(set, 0, nil)
	require.NoError(t, err)
	img, _ := act.Get("image")
	assert.Same(t, replacement, img)
}

func TestGetActivity_SingleNotificationAndBlockedSlot(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()

	var callerCalls, otherCalls int
	var last activity.Change
	caller := set.ObjectsAdded().Connect(func(activity.Change) { callerCalls++ })
	set.ObjectsAdded().Connect(func(ch activity.Change) {
		otherCalls++
		last = ch
	})

	act, err := seq.GetActivity(set, 2, caller)
	require.NoError(t, err)
	assert.Equal(t, "review", act.ConfigID())
	assert.Equal(t, 3, set.Len())

	assert.Zero(t, callerCalls)
	assert.Equal(t, 1, otherCalls)
	assert.Len(t, last.Activities, 3)
	assert.False(t, caller.Blocked())
}

func TestGetActivity_Errors(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()

	_, err := seq.GetActivity(set, 3, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidIndex))
	_, err = seq.GetActivity(set, -1, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidIndex))

	missing := New([]string{"ghost"}, newRegistry(t), data.DefaultFactory())
	_, err = missing.GetActivity(set, 0, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
	assert.Zero(t, set.Len())
}

func TestGetActivity_UnknownTypePropagates(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(schema.ActivityInfo{
		ID: "bad",
		Requirements: []schema.RequirementDescriptor{
			{Name: "ok", Type: data.TypeString, Create: true},
			{Name: "mesh", Type: "mesh", Create: true},
		},
	}))
	seq := New([]string{"bad"}, r, data.DefaultFactory())
	set := activity.NewSet()

	_, err := seq.GetActivity(set, 0, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeUnknownType))
	assert.Zero(t, set.Len())
	assert.Zero(t, seq.Store().Len(), "nothing bound for a failed activity")
}

func TestParseActivities_Idempotent(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	first, err := seq.ParseActivities(set)
	require.NoError(t, err)
	assert.Equal(t, 2, first)
	names := seq.Store().Names()

	second, err := seq.ParseActivities(set)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, names, seq.Store().Names())
}

func TestParseActivities_ErasesUnresolvedAndMismatched(t *testing.T) {
	seq := newSequencer(t)
	built := activity.NewSet()
	buildAll(t, seq, built)

	wrong := activity.New("review", "")
	set := activity.NewSet(nil, built.At(0), wrong, built.At(1), nil, built.At(2), activity.New("extra", ""))

	var removed int
	set.ObjectsRemoved().Connect(func(ch activity.Change) { removed += len(ch.Activities) })

	last, err := seq.ParseActivities(set)
	require.NoError(t, err)
	assert.Equal(t, 2, last)
	require.Equal(t, 3, set.Len())
	assert.Same(t, built.At(0), set.At(0))
	assert.Same(t, built.At(1), set.At(1))
	assert.Same(t, built.At(2), set.At(2))
	assert.Equal(t, 2, removed)
}

func TestParseActivities_StopsAtInvalidWithoutErasing(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	set.At(1).Delete("transform")
	seq.Store().Clear()

	last, err := seq.ParseActivities(set)
	require.NoError(t, err)
	assert.Equal(t, 0, last)
	assert.Equal(t, 3, set.Len())
	_, ok := seq.Store().Lookup("transform")
	assert.False(t, ok, "data of the invalid activity is not stored")
	_, ok = seq.Store().Lookup("image")
	assert.True(t, ok)
}

func TestParseActivities_EmptyAndFirstInvalid(t *testing.T) {
	seq := newSequencer(t)

	last, err := seq.ParseActivities(activity.NewSet())
	require.NoError(t, err)
	assert.Equal(t, -1, last)

	set := activity.NewSet()
	_, err = seq.GetActivity(set, 0, nil)
	require.NoError(t, err)
	last, err = seq.ParseActivities(set)
	require.NoError(t, err)
	assert.Equal(t, -1, last, "load lacks its mandatory image")
	assert.Equal(t, 1, set.Len())
}

type rejectConfig string

func (r rejectConfig) ValidateActivity(info schema.ActivityInfo, _ *activity.Activity) schema.Verdict {
	if info.ID == string(r) {
		return schema.Fail("rejected")
	}
	return schema.Pass()
}

func TestParseActivities_CustomValidator(t *testing.T) {
	seq := newSequencer(t, WithValidator(rejectConfig("review")))
	set := activity.NewSet()
	buildAll(t, seq, set)

	last, err := seq.ParseActivities(set)
	require.NoError(t, err)
	assert.Equal(t, 1, last)
}

func TestStoreActivityData_Overrides(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	original, _ := seq.Store().Lookup("transform")
	replaced := data.NewString("affine")
	set.At(1).Set("transform", replaced)
	set.At(1).Set("image", testImage())

	require.NoError(t, seq.StoreActivityData(set, 1, "transform"))
	got, _ := seq.Store().Lookup("transform")
	assert.Same(t, original, got)
	img, _ := seq.Store().Lookup("image")
	imgAct, _ := set.At(1).Get("image")
	assert.Same(t, imgAct, img)

	err := seq.StoreActivityData(set, 9)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidIndex))
}

func TestRemoveLastActivities(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	oldTransform, _ := set.At(1).Get("transform")
	oldImage, _ := set.At(0).Get("image")

	var removedNotifications int
	set.ObjectsRemoved().Connect(func(activity.Change) { removedNotifications++ })

	require.NoError(t, seq.RemoveLastActivities(set, 1))
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 1, removedNotifications)
	assert.Equal(t, uint64(1), seq.Counter().Current())
	assert.Equal(t, []string{"image", "tags"}, seq.Store().Names())

	act, err := seq.GetActivity(set, 1, nil)
	require.NoError(t, err)
	newTransform, _ := act.Get("transform")
	assert.NotSame(t, oldTransform, newTransform)
	assert.NotEqual(t, oldTransform.ID(), newTransform.ID())
	assert.Equal(t, "activity_1_transform", newTransform.ID())

	img, _ := act.Get("image")
	assert.Same(t, oldImage, img, "surviving objects keep their identity")
}

func TestRemoveLastActivities_NoOp(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	require.NoError(t, seq.RemoveLastActivities(set, 3))
	require.NoError(t, seq.RemoveLastActivities(set, 5))
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, uint64(0), seq.Counter().Current())

	err := seq.RemoveLastActivities(set, -1)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidIndex))
}

func TestRemoveLastActivities_All(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	require.NoError(t, seq.RemoveLastActivities(set, 0))
	assert.Zero(t, set.Len())
	assert.Zero(t, seq.Store().Len())
}

func TestResetRequirements(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	transform, _ := set.At(1).Get("transform")
	transform.(*data.String).SetValue("affine")
	id := transform.ID()

	landmarks, _ := set.At(1).Get("landmarks")
	landmarks.(*data.Vector).Append(data.NewFloat(1), data.NewFloat(2))

	tags, _ := set.At(0).Get("tags")
	tags.(*data.Composite).Set("t", data.NewString("101"))

	img, _ := set.At(0).Get("image")
	before := img.(*data.Image).Size()

	require.NoError(t, seq.ResetRequirements())

	after, _ := set.At(2).Get("transform")
	assert.Same(t, transform, after)
	assert.Equal(t, id, after.ID())
	assert.Equal(t, "", after.(*data.String).Value(), "fresh default, not object_config")

	assert.Zero(t, landmarks.(*data.Vector).Len())
	assert.Zero(t, tags.(*data.Composite).Len())
	assert.Equal(t, before, img.(*data.Image).Size(), "mandatory data untouched")
}

func TestResetRequirements_ReplacedPlaceholder(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	report := data.NewString("draft")
	set.At(2).Set("report", report)
	require.NoError(t, seq.StoreActivityData(set, 2))

	require.NoError(t, seq.ResetRequirements())
	assert.Equal(t, "", report.Value())
}

func TestResetRequirements_HeldTypeDiffers(t *testing.T) {
	seq := newSequencer(t)
	set := activity.NewSet()
	buildAll(t, seq, set)

	// report is declared a String; the user bound a number instead.
	report := data.NewInteger(7)
	set.At(2).Set("report", report)
	require.NoError(t, seq.StoreActivityData(set, 2))

	require.NoError(t, seq.ResetRequirements())
	got, _ := set.At(2).Get("report")
	assert.Same(t, report, got)
	assert.Zero(t, report.Value())
}

func TestSequencer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	seq := newSequencer(t, WithMetrics(rec))
	set := activity.NewSet()
	buildAll(t, seq, set)
	require.NoError(t, seq.RemoveLastActivities(set, 2))

	expected := `
# HELP sequencer_activities_created_total Activities appended to activity sets.
# TYPE sequencer_activities_created_total counter
sequencer_activities_created_total 3
# HELP sequencer_objects_minted_total Data objects created for activity requirements.
# TYPE sequencer_objects_minted_total counter
sequencer_objects_minted_total 4
# HELP sequencer_rollbacks_total Truncations of activity sets.
# TYPE sequencer_rollbacks_total counter
sequencer_rollbacks_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sequencer_activities_created_total", "sequencer_objects_minted_total", "sequencer_rollbacks_total"))
}
