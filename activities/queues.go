package activities

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/bcc-code/bcc-media-joiner/environment"

	"github.com/samber/lo"
)

var Join = JoinActivities{}

// GetJoinActivities run on the transcode queue, next to ffmpeg and the media storage.
func GetJoinActivities() []any {
	return []any{
		Join.JoinVideos,
	}
}

// GetUtilActivities only read file headers and can run on any worker.
func GetUtilActivities() []any {
	return []any{
		Join.EstimateJoin,
	}
}

func getFunctionName(i any) string {
	if fullName, ok := i.(string); ok {
		return fullName
	}
	fullName := runtime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
	elements := strings.Split(fullName, ".")
	shortName := elements[len(elements)-1]
	return strings.TrimSuffix(shortName, "-fm")
}

var joinActivities = lo.Map(GetJoinActivities(), func(i any, _ int) string {
	return getFunctionName(i)
})

func GetQueueForActivity(activity any) string {
	f := getFunctionName(activity)
	if lo.Contains(joinActivities, f) {
		return environment.GetTranscodeQueue()
	}
	return environment.GetWorkerQueue()
}
