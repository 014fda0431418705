package domain

import "sort"

// LocationCount pairs a station location with its ticket count.
type LocationCount struct {
	Location string
	Count    int
}

// TicketStats summarises the ticket population.
type TicketStats struct {
	Total               int
	ByStatus            map[TicketStatus]int
	ByPriority          map[TicketPriority]int
	TopLocations        []LocationCount
	AvgResolutionTimeMs int64
}

// TopLocationLimit caps the locations reported in stats.
const TopLocationLimit = 10

// ComputeStats aggregates stats over an in-memory ticket set.
func ComputeStats(tickets []*Ticket) TicketStats {
	stats := TicketStats{
		Total:      len(tickets),
		ByStatus:   make(map[TicketStatus]int, len(TicketStatuses)),
		ByPriority: make(map[TicketPriority]int, len(TicketPriorities)),
	}
	for _, status := range TicketStatuses {
		stats.ByStatus[status] = 0
	}
	for _, priority := range TicketPriorities {
		stats.ByPriority[priority] = 0
	}

	locations := map[string]int{}
	var (
		resolvedCount int64
		resolvedTotal int64
	)
	for _, ticket := range tickets {
		stats.ByStatus[ticket.Status]++
		stats.ByPriority[ticket.Priority]++
		locations[ticket.GasStationLocation]++
		if d, ok := ticket.ResolutionDuration(); ok {
			resolvedCount++
			resolvedTotal += d.Milliseconds()
		}
	}
	if resolvedCount > 0 {
		stats.AvgResolutionTimeMs = resolvedTotal / resolvedCount
	}

	stats.TopLocations = make([]LocationCount, 0, len(locations))
	for location, count := range locations {
		stats.TopLocations = append(stats.TopLocations, LocationCount{Location: location, Count: count})
	}
	sort.Slice(stats.TopLocations, func(i, j int) bool {
		if stats.TopLocations[i].Count != stats.TopLocations[j].Count {
			return stats.TopLocations[i].Count > stats.TopLocations[j].Count
		}
		return stats.TopLocations[i].Location < stats.TopLocations[j].Location
	})
	if len(stats.TopLocations) > TopLocationLimit {
		stats.TopLocations = stats.TopLocations[:TopLocationLimit]
	}
	return stats
}
