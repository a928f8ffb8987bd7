package agent_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/functions"
	"github.com/m2tx/function_calling/internal/provider/scripted"
	"github.com/m2tx/function_calling/internal/repository"
)

const workers = 32

func TestRegistry_ConcurrentReadsAndWrites(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(functions.CreateWeatherFunctionDeclaration(functions.NewStaticWeather())))

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[i] = reg.Register(pingDeclaration("ping"+strconv.Itoa(i), &countingFetcher{}))
		}()
		go func() {
			defer wg.Done()
			fd, err := reg.Lookup(functions.WeatherFunctionName)
			if err == nil && fd.Name != functions.WeatherFunctionName {
				err = fmt.Errorf("lookup returned %q", fd.Name)
			}
			if err == nil && reg.Describe()[0].Name != functions.WeatherFunctionName {
				err = fmt.Errorf("registration order changed")
			}
			if err != nil {
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, workers+1, reg.Len())
}

func TestDispatch_ConcurrentDispatchesShareNoState(t *testing.T) {
	d := newDispatcher(t, functions.NewStaticWeather())

	var wg sync.WaitGroup
	dispatches := make([]*agent.Dispatch, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unit := "C"
			if i%2 == 1 {
				unit = "F"
			}
			args := fmt.Sprintf(`{"location":"City %d","unit":%q}`, i, unit)
			dispatches[i], errs[i] = d.Dispatch(context.Background(), proposal("findWeather", args))
		}()
	}
	wg.Wait()

	for i, dp := range dispatches {
		require.NoError(t, errs[i])
		assert.Equal(t, agent.StateCompleted, dp.State)
		assert.Equal(t, fmt.Sprintf("City %d", i), dp.Arguments["location"])
		assert.Equal(t, fmt.Sprintf("City %d", i), dp.Result.Values["location"])

		want := "22°C"
		if i%2 == 1 {
			want = "72°F"
		}
		assert.Equal(t, want, dp.Result.Values["temperature"])
		assert.Len(t, dp.Trace, 5)
	}
}

func TestAgent_Send_Concurrent(t *testing.T) {
	journal := repository.NewMemoryDispatchRepository(repository.DefaultMemoryCapacity)
	var next atomic.Int64
	a := newWeatherAgent(t, scripted.New(scripted.WeatherRule()),
		agent.WithRepository(journal),
		agent.WithIDGenerator(func() string { return "dispatch-" + strconv.FormatInt(next.Add(1), 10) }),
	)

	var wg sync.WaitGroup
	answers := make([]*agent.Answer, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answers[i], errs[i] = a.Send(context.Background(), fmt.Sprintf("What's the weather in City %d, C?", i))
		}()
	}
	wg.Wait()

	ids := make(map[string]bool, workers)
	for i, answer := range answers {
		require.NoError(t, errs[i])
		city := fmt.Sprintf("City %d", i)
		assert.Equal(t, city, answer.Arguments["location"])
		assert.Contains(t, answer.Text, city)
		ids[answer.DispatchID] = true

		record, err := a.Dispatch(context.Background(), answer.DispatchID)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, answer.Text, record.Answer)
	}
	assert.Len(t, ids, workers)
	assert.Equal(t, workers, journal.Len())
}
